package rules

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/diegoholiveira/jsonlogic"
	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/roach88/cartprice/internal/condition"
)

// document is the cart as seen by jsonlogic and expression rules. Money
// figures are without conditions. Item is nil unless an item-targeted
// condition is being evaluated; expressions should use item?.field.
type document struct {
	Items    []documentItem `json:"items" expr:"items"`
	Count    int            `json:"count" expr:"count"`
	Quantity int            `json:"quantity" expr:"quantity"`
	Subtotal float64        `json:"subtotal" expr:"subtotal"`
	Total    float64        `json:"total" expr:"total"`
	Metadata map[string]any `json:"metadata" expr:"metadata"`
	Item     *documentItem  `json:"item" expr:"item"`
}

type documentItem struct {
	ID         string         `json:"id" expr:"id"`
	Name       string         `json:"name" expr:"name"`
	Price      float64        `json:"price" expr:"price"`
	Quantity   int            `json:"quantity" expr:"quantity"`
	Total      float64        `json:"total" expr:"total"`
	Attributes map[string]any `json:"attributes" expr:"attributes"`
}

func newDocumentItem(it condition.ItemState) documentItem {
	attrs := it.Attributes()
	if attrs == nil {
		attrs = map[string]any{}
	}
	return documentItem{
		ID:         it.ID(),
		Name:       it.Name(),
		Price:      it.Price(),
		Quantity:   it.Quantity(),
		Total:      it.Price() * float64(it.Quantity()),
		Attributes: attrs,
	}
}

func newDocument(cart condition.CartState, item condition.ItemState) *document {
	states := cart.ItemStates()
	doc := &document{
		Items:    make([]documentItem, len(states)),
		Count:    len(states),
		Subtotal: cart.SubtotalWithoutConditions(),
		Total:    cart.TotalWithoutConditions(),
		Metadata: make(map[string]any),
	}
	for i, it := range states {
		doc.Items[i] = newDocumentItem(it)
		doc.Quantity += it.Quantity()
	}
	for _, k := range cart.MetadataKeys() {
		if v, ok := cart.Metadata(k); ok {
			doc.Metadata[k] = v
		}
	}
	if item != nil {
		di := newDocumentItem(item)
		doc.Item = &di
	}
	return doc
}

// jsonLogic accepts the rule either as structured data or as a JSON string.
func jsonLogic(ctx Context) (condition.Predicate, error) {
	var rule []byte
	switch v := ctx["logic"].(type) {
	case string:
		if !json.Valid([]byte(v)) {
			return nil, contextError(JSONLogic, "logic", "not valid JSON")
		}
		rule = []byte(v)
	default:
		b, err := json.Marshal(normalize(v))
		if err != nil {
			return nil, contextError(JSONLogic, "logic", "cannot encode: %v", err)
		}
		rule = b
	}

	return func(cart condition.CartState, item condition.ItemState) (bool, error) {
		data, err := json.Marshal(newDocument(cart, item))
		if err != nil {
			return false, fmt.Errorf("jsonlogic: encode cart: %w", err)
		}
		var out bytes.Buffer
		if err := jsonlogic.Apply(bytes.NewReader(rule), bytes.NewReader(data), &out); err != nil {
			return false, fmt.Errorf("jsonlogic: %w", err)
		}
		var res any
		if out.Len() > 0 {
			if err := json.Unmarshal(out.Bytes(), &res); err != nil {
				return false, fmt.Errorf("jsonlogic: decode result: %w", err)
			}
		}
		return logicTruthy(res), nil
	}, nil
}

// expression compiles once at build time; evaluation only runs the program.
func expression(ctx Context) (condition.Predicate, error) {
	src := ctx.String("expr")
	program, err := expr.Compile(src, expr.Env(&document{}), expr.AsBool())
	if err != nil {
		return nil, contextError(Expression, "expr", "%v", err)
	}
	return func(cart condition.CartState, item condition.ItemState) (bool, error) {
		return runBool(program, newDocument(cart, item))
	}, nil
}

func runBool(program *vm.Program, doc *document) (bool, error) {
	out, err := expr.Run(program, doc)
	if err != nil {
		return false, fmt.Errorf("expression: %w", err)
	}
	b, ok := out.(bool)
	if !ok {
		return false, fmt.Errorf("expression: result %T is not bool", out)
	}
	return b, nil
}

// logicTruthy follows JSONLogic truthiness: empty string, zero, empty
// array and null are false.
func logicTruthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case float64:
		return t != 0
	case []any:
		return len(t) > 0
	}
	return true
}

// normalize converts YAML-decoded maps (map[any]any) into JSON-encodable
// ones.
func normalize(v any) any {
	switch t := v.(type) {
	case map[any]any:
		m := make(map[string]any, len(t))
		for k, val := range t {
			m[fmt.Sprint(k)] = normalize(val)
		}
		return m
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, val := range t {
			m[k] = normalize(val)
		}
		return m
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = normalize(val)
		}
		return out
	}
	return v
}
