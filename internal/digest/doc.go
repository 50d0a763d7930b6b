// Package digest computes stable hashes over evaluated configurator inputs
// and turns a (candidate, prior ChangeRecord) pair into the four booleans
// the planner's decision table consults: specChanged, inputsChanged,
// dependenciesChanged, statusDrift.
package digest
