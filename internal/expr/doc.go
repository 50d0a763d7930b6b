// Package expr evaluates dependency and templated-input references against
// the live instance graph. See Result for the lazy-evaluation contract and
// pkg/vault for the sensitive-value tainting it honors.
package expr
