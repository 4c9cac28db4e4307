// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Hydroplant Master Controller - central controller for a multi-floor
hydroponics installation.

Copyright (C) 2025  offish

This program is free software licensed under the terms of the GNU AGPL v3 or later.

See https://www.gnu.org/licenses/ for license details.
*/

// Package payload defines the dynamic key-value payload shared by commands,
// receipts, and announcements, replacing the ad-hoc dict-of-dicts shape of
// the original implementation with one explicit type.
package payload

import (
	"encoding/json"
	"sort"
)

// Payload is a key-value map with string keys and dynamic values.
// Values may be number, string, bool, nil, or nested maps/slices. It is a
// plain Go map and does not keep insertion order; Canonical sorts keys to get
// a stable encoding.
type Payload map[string]any

// StrippedKeys are transport-only keys removed before outbound serialization.
var StrippedKeys = map[string]struct{}{
	"time":   {},
	"status": {},
	"topic":  {},
}

// Clone returns a shallow copy of p.
func (p Payload) Clone() Payload {
	out := make(Payload, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// WithoutTransportKeys returns a copy of p with StrippedKeys removed.
func (p Payload) WithoutTransportKeys() Payload {
	out := make(Payload, len(p))
	for k, v := range p {
		if _, stripped := StrippedKeys[k]; stripped {
			continue
		}
		out[k] = v
	}
	return out
}

// Value returns p["value"], or nil if absent.
func (p Payload) Value() any {
	return p["value"]
}

// String returns p[key] as a string, or "" if absent or not a string.
func (p Payload) String(key string) string {
	v, _ := p[key].(string)
	return v
}

// Float returns p[key] as a float64. Handles both float64 (from JSON
// unmarshaling) and int, returning (0, false) for anything else.
func (p Payload) Float(key string) (float64, bool) {
	switch v := p[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	default:
		return 0, false
	}
}

// ValueEquals reports whether p["value"] equals other: numerically when both
// are numbers (float64 or int), otherwise with ==. Used by the autonomy
// scheduler's redundant-step filter and its awaited-value predicate's default
// case.
func (p Payload) ValueEquals(other any) bool {
	return valuesEqual(p["value"], other)
}

func valuesEqual(a, b any) bool {
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		return af == bf
	}
	return a == b
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	default:
		return 0, false
	}
}

// Canonical returns a deterministic string encoding of p, used exclusively
// for step-deduplication keys. Keys are sorted before marshaling so two
// payloads with identical content but different insertion order hash equal.
func (p Payload) Canonical() string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	ordered := make([]canonicalEntry, 0, len(keys))
	for _, k := range keys {
		ordered = append(ordered, canonicalEntry{Key: k, Value: p[k]})
	}

	b, err := json.Marshal(ordered)
	if err != nil {
		// Canonical encoding is only used for dedup hashing; a marshal
		// failure here means the payload contains a value JSON cannot
		// represent (e.g. a channel), which never happens for data that
		// arrived over the bus as JSON in the first place.
		return ""
	}
	return string(b)
}

type canonicalEntry struct {
	Key   string `json:"key"`
	Value any    `json:"value"`
}

// Parse decodes raw JSON bytes into a Payload, returning an empty Payload on
// malformed input rather than an error (§7 MalformedPayload: router
// substitutes the empty object and continues).
func Parse(raw []byte) Payload {
	if len(raw) == 0 {
		return Payload{}
	}
	var p Payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return Payload{}
	}
	if p == nil {
		p = Payload{}
	}
	return p
}
