package configurator

import (
	"fmt"
	"sort"

	"github.com/giantswarm/muster-ensemble/internal/instance"
	"github.com/giantswarm/muster-ensemble/internal/task"
)

// DNSRecord is one declarative DNS record, matching OctoDNS's provider
// record shape closely enough to ground this configurator on
// unfurl/configurators/octodns.py's DnsProperties.
type DNSRecord struct {
	Name  string // relative name within the zone ("" for apex)
	Type  string // A, CNAME, TXT, ...
	TTL   int
	Value []string
}

func (r DNSRecord) key() string { return r.Name + "/" + r.Type }

// DNSProvider is the minimal surface the dnssync configurator needs from a
// concrete DNS backend (OctoDNS-compatible providers, Route53, etc.). A
// fake in-memory implementation is used by tests; a real deployment wires
// in an OctoDNS-backed implementation the way
// unfurl/configurators/octodns.py wires octodns.manager.Manager.
type DNSProvider interface {
	CurrentRecords(zone string) ([]DNSRecord, error)
	ApplyRecord(zone string, rec DNSRecord) error
	DeleteRecord(zone string, rec DNSRecord) error
}

// DNSSyncConfigurator reconciles a declared record set against a zone's
// live records: Render diffs them, then the producer applies each create/
// update/delete directly through the DNSProvider and finishes with one
// terminal ConfiguratorResult; it yields no sub-TaskRequests. Grounded on
// unfurl/configurators/octodns.py's declarative
// "exclusive" record-set reconciliation.
type DNSSyncConfigurator struct {
	Provider DNSProvider
}

// NewDNSSyncConfigurator builds a registry factory bound to a provider.
func NewDNSSyncConfigurator(provider DNSProvider) func() Configurator {
	return func() Configurator { return &DNSSyncConfigurator{Provider: provider} }
}

func (c *DNSSyncConfigurator) CanDryRun(t *task.Task) bool { return true }

func (c *DNSSyncConfigurator) CanRun(t *task.Task) (bool, string) {
	if _, ok := t.Request.ConfigSpec.Inputs["zone"].(string); !ok {
		return false, "dnssync configurator requires a 'zone' input"
	}
	if c.Provider == nil {
		return false, "no DNS provider configured"
	}
	return true, ""
}

func (c *DNSSyncConfigurator) ShouldRun(t *task.Task) instance.Priority {
	return t.Target.Priority()
}

type dnsPlan struct {
	zone      string
	exclusive bool
	create    []DNSRecord
	update    []DNSRecord
	delete    []DNSRecord
}

func (c *DNSSyncConfigurator) Render(t *task.Task) (any, error) {
	inputs := t.Request.ConfigSpec.Inputs
	zone, _ := inputs["zone"].(string)
	exclusive, _ := inputs["exclusive"].(bool)

	declared, err := decodeRecords(inputs["records"])
	if err != nil {
		return nil, fmt.Errorf("dnssync: %w", err)
	}

	current, err := c.Provider.CurrentRecords(zone)
	if err != nil {
		return nil, fmt.Errorf("dnssync: reading current records: %w", err)
	}
	currentByKey := make(map[string]DNSRecord, len(current))
	for _, r := range current {
		currentByKey[r.key()] = r
	}

	plan := dnsPlan{zone: zone, exclusive: exclusive}
	seen := make(map[string]bool, len(declared))
	for _, want := range declared {
		seen[want.key()] = true
		if have, ok := currentByKey[want.key()]; !ok {
			plan.create = append(plan.create, want)
		} else if !recordsEqual(have, want) {
			plan.update = append(plan.update, want)
		}
	}
	if exclusive {
		for key, have := range currentByKey {
			if !seen[key] {
				plan.delete = append(plan.delete, have)
			}
		}
	}
	sortRecords(plan.create)
	sortRecords(plan.update)
	sortRecords(plan.delete)
	return plan, nil
}

func (c *DNSSyncConfigurator) Run(t *task.Task) (Producer, error) {
	plan, _ := t.Rendered.(dnsPlan)
	return &dnsSyncProducer{provider: c.Provider, plan: plan}, nil
}

// dnsSyncProducer walks the create/update/delete lists one record at a
// time, calling the provider for each and recording one outcome line per
// change (failures included), then returns the outcomes in a single
// terminal ConfiguratorResult.
type dnsSyncProducer struct {
	provider DNSProvider
	plan     dnsPlan
	queue    []dnsOp
	index    int
	outcomes []string
	started  bool
}

type dnsOp struct {
	kind   string // create/update/delete
	record DNSRecord
}

func (p *dnsSyncProducer) buildQueue() {
	for _, r := range p.plan.create {
		p.queue = append(p.queue, dnsOp{"create", r})
	}
	for _, r := range p.plan.update {
		p.queue = append(p.queue, dnsOp{"update", r})
	}
	for _, r := range p.plan.delete {
		p.queue = append(p.queue, dnsOp{"delete", r})
	}
}

func (p *dnsSyncProducer) Next(resumeValue any) (Step, error) {
	if !p.started {
		p.started = true
		p.buildQueue()
	} else if result, ok := resumeValue.(*task.ConfiguratorResult); ok && result != nil {
		if !result.Success {
			p.outcomes = append(p.outcomes, "failed: "+result.Reason)
		} else {
			p.outcomes = append(p.outcomes, "applied")
		}
		p.index++
	}

	for p.index < len(p.queue) {
		op := p.queue[p.index]
		var err error
		switch op.kind {
		case "delete":
			err = p.provider.DeleteRecord(p.plan.zone, op.record)
		default:
			err = p.provider.ApplyRecord(p.plan.zone, op.record)
		}
		p.index++
		if err != nil {
			p.outcomes = append(p.outcomes, fmt.Sprintf("%s %s failed: %v", op.kind, op.record.key(), err))
			continue
		}
		p.outcomes = append(p.outcomes, fmt.Sprintf("%s %s", op.kind, op.record.key()))
	}

	modified := len(p.queue) > 0
	result := task.ConfiguratorResult{
		Success:    true,
		Applied:    true,
		Modified:   modified,
		ReadyState: instance.StatusOK,
		Outputs:    map[string]any{"changes": p.outcomes},
		Messages:   p.outcomes,
	}
	return Step{ConfiguratorResult: &result}, nil
}

func decodeRecords(raw any) ([]DNSRecord, error) {
	list, ok := raw.([]any)
	if !ok {
		if recs, ok := raw.([]DNSRecord); ok {
			return recs, nil
		}
		return nil, fmt.Errorf("'records' input must be a list")
	}
	out := make([]DNSRecord, 0, len(list))
	for _, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("each record must be a map")
		}
		rec := DNSRecord{}
		rec.Name, _ = m["name"].(string)
		rec.Type, _ = m["type"].(string)
		if ttl, ok := m["ttl"].(int); ok {
			rec.TTL = ttl
		}
		if vals, ok := m["value"].([]any); ok {
			for _, v := range vals {
				if s, ok := v.(string); ok {
					rec.Value = append(rec.Value, s)
				}
			}
		} else if s, ok := m["value"].(string); ok {
			rec.Value = []string{s}
		}
		out = append(out, rec)
	}
	return out, nil
}

func recordsEqual(a, b DNSRecord) bool {
	if a.TTL != b.TTL || len(a.Value) != len(b.Value) {
		return false
	}
	av := append([]string(nil), a.Value...)
	bv := append([]string(nil), b.Value...)
	sort.Strings(av)
	sort.Strings(bv)
	for i := range av {
		if av[i] != bv[i] {
			return false
		}
	}
	return true
}

func sortRecords(recs []DNSRecord) {
	sort.Slice(recs, func(i, j int) bool { return recs[i].key() < recs[j].key() })
}
