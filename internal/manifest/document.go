// Package manifest implements the persisted state document (spec.md §6,
// "Persisted state document"): the Ensemble/Manifest YAML document holding
// the topology source, the instance status tree, and the append-only
// ChangeRecord log, plus the `+`-include merge-directive resolution that
// lets one document graft in another's subtree at load time while keeping
// the include sites intact for re-serialization.
//
// Grounded on the teacher's YAML-document conventions (gopkg.in/yaml.v3 for
// the top-level document, sigs.k8s.io/yaml where JSON-tag struct decoding
// is more convenient) and on unfurl's manifest.py include/merge handling.
package manifest

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/giantswarm/muster-ensemble/internal/task"
	"github.com/giantswarm/muster-ensemble/pkg/vault"
)

// Document is the in-memory form of one persisted state document.
type Document struct {
	APIVersion string `yaml:"apiVersion"`
	Kind       string `yaml:"kind"`

	Spec struct {
		ServiceTemplate map[string]any   `yaml:"service_template"`
		Instances       []map[string]any `yaml:"instances,omitempty"`
		Installers      []map[string]any `yaml:"installers,omitempty"`
	} `yaml:"spec"`

	Status struct {
		Topology struct {
			Instances map[string]InstanceRecord `yaml:"instances"`
		} `yaml:"topology"`
	} `yaml:"status"`

	Changes []task.ChangeRecord `yaml:"changes,omitempty"`

	Environment struct {
		Inputs map[string]any `yaml:"inputs,omitempty"`
	} `yaml:"environment"`

	Lock map[string]any `yaml:"lock,omitempty"`

	// raw is the untouched parse tree, kept only so Save() can
	// re-serialize the original `+`-includes rather than their expanded
	// form; Expanded() never mutates it.
	raw map[string]any
}

// ReadyState mirrors status.topology.instances[*].readyState.
type ReadyState struct {
	Local string `yaml:"local"`
	State string `yaml:"state"`
}

// InstanceRecord is one entry of status.topology.instances (spec.md §6).
type InstanceRecord struct {
	Template     string          `yaml:"template"`
	Attributes   map[string]any  `yaml:"attributes,omitempty"`
	ReadyState   ReadyState      `yaml:"readyState"`
	Priority     string          `yaml:"priority"`
	Capabilities map[string]bool `yaml:"capabilities,omitempty"`
	Requirements map[string]string `yaml:"requirements,omitempty"`
	Children     map[string]bool `yaml:"children,omitempty"`
	CreatedOn    time.Time       `yaml:"createdOn"`
	CreatedFrom  string          `yaml:"createdFrom,omitempty"`
	// CreatedByEngine mirrors instance.Created.ByEngine: true means this
	// instance's own delete operation applies on undeploy. Persisted
	// explicitly because the zero value (false) is meaningful — it marks
	// instances bound via `select`/`discover` that must never be deleted.
	CreatedByEngine bool `yaml:"createdByEngine,omitempty"`
	Protected       bool `yaml:"protected,omitempty"`
}

// NewDocument builds an empty document for a brand new ensemble, ready for
// Spec.ServiceTemplate to be populated before the first job runs.
func NewDocument(apiVersion, kind string) *Document {
	d := &Document{APIVersion: apiVersion, Kind: kind, raw: map[string]any{}}
	d.Status.Topology.Instances = make(map[string]InstanceRecord)
	d.Spec.ServiceTemplate = make(map[string]any)
	return d
}

// Parse decodes a document from YAML bytes, resolving `+`-includes against
// the document's own root (cross-document includes are not modeled; the
// spec's "possibly in an imported topology" select-target case is handled
// one layer up, by whatever loads multiple documents).
func Parse(data []byte) (*Document, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("manifest: parse: %w", err)
	}

	expanded, err := resolveIncludes(raw, raw, "merge")
	if err != nil {
		return nil, fmt.Errorf("manifest: resolving includes: %w", err)
	}

	expandedBytes, err := yaml.Marshal(expanded)
	if err != nil {
		return nil, fmt.Errorf("manifest: re-marshaling expanded form: %w", err)
	}

	var doc Document
	if err := yaml.Unmarshal(expandedBytes, &doc); err != nil {
		return nil, fmt.Errorf("manifest: decoding expanded document: %w", err)
	}
	doc.raw = raw
	return &doc, nil
}

// Save re-serializes the document. Fields that were mutated through the
// Document's typed accessors (AppendChangeRecords, SetInstanceRecord, ...)
// are written into the raw tree's corresponding path before marshaling, so
// the original `+`-include sites survive the round trip (spec §8,
// "Include round-trip").
func (d *Document) Save() ([]byte, error) {
	if d.raw == nil {
		d.raw = map[string]any{}
	}
	d.raw["apiVersion"] = d.APIVersion
	d.raw["kind"] = d.Kind
	setPath(d.raw, []string{"changes"}, redactChangeRecords(d.Changes))
	setPath(d.raw, []string{"status", "topology", "instances"}, redactInstanceRecords(d.Status.Topology.Instances))
	setPath(d.raw, []string{"environment", "inputs"}, d.Environment.Inputs)
	return yaml.Marshal(d.raw)
}

// AppendChangeRecords adds to the append-only change log (spec §3,
// ChangeRecords are never edited once committed).
func (d *Document) AppendChangeRecords(records ...task.ChangeRecord) {
	d.Changes = append(d.Changes, records...)
}

// SetInstanceRecord upserts one instance's status entry.
func (d *Document) SetInstanceRecord(name string, rec InstanceRecord) {
	if d.Status.Topology.Instances == nil {
		d.Status.Topology.Instances = make(map[string]InstanceRecord)
	}
	d.Status.Topology.Instances[name] = rec
}

func setPath(root map[string]any, path []string, value any) {
	cur := root
	for i, key := range path {
		if i == len(path)-1 {
			cur[key] = value
			return
		}
		next, ok := cur[key].(map[string]any)
		if !ok {
			next = map[string]any{}
			cur[key] = next
		}
		cur = next
	}
}

// redactChangeRecords returns ChangeRecords with tainted ResourceChanges
// values replaced by their redacted form before they ever reach disk
// (spec §5's secret-handling concern, carried via pkg/vault).
func redactChangeRecords(records []task.ChangeRecord) []task.ChangeRecord {
	out := make([]task.ChangeRecord, len(records))
	for i, rec := range records {
		rec.ResourceChanges = redactMap(rec.ResourceChanges)
		out[i] = rec
	}
	return out
}

func redactInstanceRecords(recs map[string]InstanceRecord) map[string]InstanceRecord {
	out := make(map[string]InstanceRecord, len(recs))
	for name, rec := range recs {
		rec.Attributes = redactMap(rec.Attributes)
		out[name] = rec
	}
	return out
}

func redactMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = redactValue(v)
	}
	return out
}

func redactValue(v any) any {
	if vault.IsTainted(v) {
		if t, ok := v.(vault.Tainted); ok {
			return t.Redacted()
		}
	}
	if m, ok := v.(map[string]any); ok {
		return redactMap(m)
	}
	return v
}
