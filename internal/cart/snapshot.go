package cart

import (
	"bytes"
	"fmt"
	"strconv"

	json "github.com/goccy/go-json"
)

// snapshotDoc is the persisted layout: {"items":[{...item fields..., "quantity":n}]}.
type snapshotDoc struct {
	Items []json.RawMessage `json:"items"`
}

type quantityField struct {
	Quantity int `json:"quantity"`
}

func encodeSnapshot[T any](lines []Line[T]) ([]byte, error) {
	doc := snapshotDoc{Items: make([]json.RawMessage, 0, len(lines))}
	for _, line := range lines {
		raw, err := json.Marshal(line.Item)
		if err != nil {
			return nil, fmt.Errorf("encode cart item: %w", err)
		}
		entry, err := withQuantity(raw, line.Quantity)
		if err != nil {
			return nil, err
		}
		doc.Items = append(doc.Items, entry)
	}
	return json.Marshal(doc)
}

// withQuantity splices the quantity field into an encoded JSON object.
func withQuantity(raw []byte, quantity int) (json.RawMessage, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) < 2 || trimmed[0] != '{' || trimmed[len(trimmed)-1] != '}' {
		return nil, fmt.Errorf("encode cart item: item must encode as a JSON object")
	}
	body := bytes.TrimSpace(trimmed[1 : len(trimmed)-1])
	var buf bytes.Buffer
	buf.Grow(len(body) + 24)
	buf.WriteByte('{')
	if len(body) > 0 {
		buf.Write(body)
		buf.WriteByte(',')
	}
	buf.WriteString(`"quantity":`)
	buf.WriteString(strconv.Itoa(quantity))
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// decodeSnapshot parses a snapshot. Entries with an empty key or a quantity
// below one are dropped and counted; duplicate keys are merged.
func decodeSnapshot[T any](data []byte, keyFn KeyFunc[T]) ([]Line[T], int, error) {
	var doc snapshotDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, 0, fmt.Errorf("decode cart snapshot: %w", err)
	}
	var (
		lines   []Line[T]
		dropped int
		index   = make(map[string]int, len(doc.Items))
	)
	for _, raw := range doc.Items {
		var item T
		var qty quantityField
		if err := json.Unmarshal(raw, &item); err != nil {
			dropped++
			continue
		}
		if err := json.Unmarshal(raw, &qty); err != nil {
			dropped++
			continue
		}
		key := keyFn(item)
		if key == "" || qty.Quantity < 1 {
			dropped++
			continue
		}
		if idx, ok := index[key]; ok {
			lines[idx].Quantity += qty.Quantity
			continue
		}
		index[key] = len(lines)
		lines = append(lines, Line[T]{Item: item, Quantity: qty.Quantity})
	}
	return lines, dropped, nil
}
