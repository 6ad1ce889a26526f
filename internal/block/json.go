package block

import (
	"encoding/json"
	"fmt"
)

type envelope struct {
	ID    ID              `json:"blockId"`
	Type  Kind            `json:"type"`
	Value json.RawMessage `json:"value"`
}

func (b Block) MarshalJSON() ([]byte, error) {
	value := b.Value
	if value == nil {
		return nil, fmt.Errorf("block %s has no value", b.ID)
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	return json.Marshal(envelope{ID: b.ID, Type: value.Kind(), Value: raw})
}

func (b *Block) UnmarshalJSON(data []byte) error {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}

	value, err := DecodeValue(env.Type, env.Value)
	if err != nil {
		return fmt.Errorf("block %s: %w", env.ID, err)
	}

	b.ID = env.ID
	b.Value = value
	return nil
}

// DecodeValue decodes a kind-specific payload. An empty payload yields the kind's zero value.
func DecodeValue(kind Kind, raw []byte) (Value, error) {
	var value Value
	switch kind {
	case KindParagraph:
		value = &Paragraph{}
	case KindHeading:
		value = &Heading{}
	case KindDivider:
		return &Divider{}, nil
	case KindImage:
		value = &Image{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}

	if len(raw) == 0 || string(raw) == "null" {
		return value, nil
	}
	if err := json.Unmarshal(raw, value); err != nil {
		return nil, fmt.Errorf("decode %s value: %w", kind, err)
	}
	return value, nil
}

type patchFields struct {
	Text    *string `json:"text"`
	Variant *Level  `json:"variant"`
	URL     *string `json:"URL"`
	Caption *string `json:"caption"`
}

// DecodePatch builds the patch for kind from a JSON object of the kind's value fields.
// Fields that don't belong to the kind are rejected rather than dropped.
func DecodePatch(kind Kind, raw []byte) (Patch, error) {
	var f patchFields
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &f); err != nil {
			return nil, fmt.Errorf("decode patch: %w", err)
		}
	}

	switch kind {
	case KindParagraph:
		if f.Variant != nil || f.URL != nil || f.Caption != nil {
			return nil, fmt.Errorf("%w: paragraph patch accepts only text", ErrKindMismatch)
		}
		if f.Text == nil {
			return nil, fmt.Errorf("%w: paragraph patch requires text", ErrKindMismatch)
		}
		return ParagraphPatch{Text: *f.Text}, nil
	case KindHeading:
		if f.URL != nil || f.Caption != nil {
			return nil, fmt.Errorf("%w: heading patch accepts only text and variant", ErrKindMismatch)
		}
		return HeadingPatch{Text: f.Text, Level: f.Variant}, nil
	case KindImage:
		if f.Text != nil || f.Variant != nil {
			return nil, fmt.Errorf("%w: image patch accepts only URL and caption", ErrKindMismatch)
		}
		return ImagePatch{URL: f.URL, Caption: f.Caption}, nil
	case KindDivider:
		return nil, fmt.Errorf("%w: divider blocks have no editable fields", ErrKindMismatch)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
}
