package remote

import (
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

var pathEscaper = strings.NewReplacer(
	`\`, `\\`,
	`.`, `\.`,
	`*`, `\*`,
	`?`, `\?`,
	`|`, `\|`,
	`#`, `\#`,
	`@`, `\@`,
	`:`, `\:`,
)

// mergeDocument writes every top-level field of patch into existing,
// leaving fields absent from patch untouched.
func mergeDocument(existing, patch []byte) ([]byte, error) {
	if !gjson.ValidBytes(patch) || !gjson.ParseBytes(patch).IsObject() {
		return nil, fmt.Errorf("remote: merge patch must be a JSON object")
	}
	if existing == nil {
		return append([]byte(nil), patch...), nil
	}
	out := append([]byte(nil), existing...)
	var err error
	gjson.ParseBytes(patch).ForEach(func(key, value gjson.Result) bool {
		out, err = sjson.SetRawBytes(out, pathEscaper.Replace(key.String()), []byte(value.Raw))
		return err == nil
	})
	if err != nil {
		return nil, fmt.Errorf("remote: merge field: %w", err)
	}
	return out, nil
}

// apply computes the document that results from op, or nil for a delete.
func apply(op Op, existing []byte) ([]byte, error) {
	switch op.Kind {
	case OpDelete:
		return nil, nil
	case OpMerge:
		return mergeDocument(existing, op.Data)
	case OpSet:
		if !gjson.ValidBytes(op.Data) {
			return nil, fmt.Errorf("remote: document for %s is not valid JSON", op.Path)
		}
		return append([]byte(nil), op.Data...), nil
	default:
		return nil, fmt.Errorf("remote: unknown op %d", op.Kind)
	}
}
