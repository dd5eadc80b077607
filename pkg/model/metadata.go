package model

import (
	"encoding/json"
	"fmt"
)

// NullString is a string whose empty value serialises as JSON null.
// Both null and "" decode to the empty value.
type NullString string

func (s NullString) MarshalJSON() ([]byte, error) {
	if s == "" {
		return []byte("null"), nil
	}
	return json.Marshal(string(s))
}

func (s *NullString) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*s = ""
		return nil
	}
	var v string
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*s = NullString(v)
	return nil
}

// Metadata holds free-form sample annotations. The empty string is the only
// "unset" value; on the wire batch is written as null and phenotype as "".
type Metadata struct {
	Batch     NullString
	Phenotype string
	Extra     map[string]string
}

func (m Metadata) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(m.Extra)+2)
	for k, v := range m.Extra {
		out[k] = v
	}
	out["batch"] = m.Batch
	out["phenotype"] = m.Phenotype
	return json.Marshal(out)
}

func (m *Metadata) UnmarshalJSON(data []byte) error {
	var raw map[string]*string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("metadata: %w", err)
	}
	*m = Metadata{}
	for k, v := range raw {
		val := ""
		if v != nil {
			val = *v
		}
		switch k {
		case "batch":
			m.Batch = NullString(val)
		case "phenotype":
			m.Phenotype = val
		default:
			if m.Extra == nil {
				m.Extra = make(map[string]string)
			}
			m.Extra[k] = val
		}
	}
	return nil
}
