package netif

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// WireID is an identifier as it travels over JSON. The REST API sends
// numeric IDs as numbers while other backends use opaque strings; both
// decode to the same string. All-digit IDs are encoded back as numbers.
type WireID string

// MarshalJSON implements json.Marshaler
func (id WireID) MarshalJSON() ([]byte, error) {
	if isDecimal(string(id)) {
		return []byte(id), nil
	}
	return json.Marshal(string(id))
}

// UnmarshalJSON implements json.Unmarshaler
func (id *WireID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = WireID(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("identifier must be a number or a string: %w", err)
	}
	*id = WireID(n.String())
	return nil
}

// isDecimal reports a non-negative integer without leading zeros
func isDecimal(s string) bool {
	if s == "" || len(s) > 18 || (len(s) > 1 && s[0] == '0') {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// UnmarshalJSON accepts numeric or string IDs
func (s *Subnet) UnmarshalJSON(data []byte) error {
	type plain Subnet
	aux := struct {
		*plain
		ID WireID `json:"id"`
	}{plain: (*plain)(s)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	s.ID = string(aux.ID)
	return nil
}

// UnmarshalJSON accepts numeric or string IDs
func (v *VPC) UnmarshalJSON(data []byte) error {
	type plain VPC
	aux := struct {
		*plain
		ID WireID `json:"id"`
	}{plain: (*plain)(v)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	v.ID = string(aux.ID)
	return nil
}

// UnmarshalJSON accepts numeric or string IDs
func (i *Instance) UnmarshalJSON(data []byte) error {
	type plain Instance
	aux := struct {
		*plain
		ID WireID `json:"id"`
	}{plain: (*plain)(i)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	i.ID = string(aux.ID)
	return nil
}

// UnmarshalJSON accepts numeric or string IDs
func (c *ConfigProfile) UnmarshalJSON(data []byte) error {
	type plain ConfigProfile
	aux := struct {
		*plain
		ID WireID `json:"id"`
	}{plain: (*plain)(c)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	c.ID = string(aux.ID)
	return nil
}

// UnmarshalJSON accepts numeric or string IDs
func (l *LegacyInterface) UnmarshalJSON(data []byte) error {
	type plain LegacyInterface
	aux := struct {
		*plain
		ID     WireID `json:"id"`
		VPCID  WireID `json:"vpc_id"`
		Subnet WireID `json:"subnet_id"`
	}{plain: (*plain)(l)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	l.ID = string(aux.ID)
	l.VPCID = string(aux.VPCID)
	l.Subnet = string(aux.Subnet)
	return nil
}

// UnmarshalJSON accepts numeric or string IDs
func (v *ModernVPC) UnmarshalJSON(data []byte) error {
	type plain ModernVPC
	aux := struct {
		*plain
		VPCID    WireID `json:"vpc_id"`
		SubnetID WireID `json:"subnet_id"`
	}{plain: (*plain)(v)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	v.VPCID = string(aux.VPCID)
	v.SubnetID = string(aux.SubnetID)
	return nil
}

// UnmarshalJSON accepts numeric or string IDs
func (m *ModernInterface) UnmarshalJSON(data []byte) error {
	type plain ModernInterface
	aux := struct {
		*plain
		ID WireID `json:"id"`
	}{plain: (*plain)(m)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	m.ID = string(aux.ID)
	return nil
}
