package models

import (
	"encoding/json"
	"fmt"
)

// propsEnvelope is the wire form for AuthProps: the variant payload plus the
// discriminator, so hosts can store props as opaque JSON and decode later.
type propsEnvelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// EncodeAuthProps serializes a credential with its discriminator.
func EncodeAuthProps(props AuthProps) ([]byte, error) {
	data, err := json.Marshal(props)
	if err != nil {
		return nil, fmt.Errorf("marshal auth props: %w", err)
	}
	return json.Marshal(propsEnvelope{Type: props.Type(), Data: data})
}

// DecodeAuthProps restores a credential from its wire form, rejecting
// unknown discriminators instead of guessing a variant.
func DecodeAuthProps(raw []byte) (AuthProps, error) {
	var env propsEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("unmarshal auth props envelope: %w", err)
	}
	switch env.Type {
	case TypeUserToken:
		var props UserTokenProps
		if err := json.Unmarshal(env.Data, &props); err != nil {
			return nil, fmt.Errorf("unmarshal user token props: %w", err)
		}
		return props, nil
	case TypeAccountToken:
		var props AccountTokenProps
		if err := json.Unmarshal(env.Data, &props); err != nil {
			return nil, fmt.Errorf("unmarshal account token props: %w", err)
		}
		return props, nil
	default:
		return nil, fmt.Errorf("unknown auth props type %q", env.Type)
	}
}
