// Package yqutil runs yq expressions over YAML tool output.
package yqutil

import (
	"fmt"
	"strings"

	"github.com/mikefarah/yq/v4/pkg/yqlib"
	"gopkg.in/op/go-logging.v1"
)

func init() {
	// yqlib logs every evaluation at debug level through go-logging.
	logging.SetLevel(logging.ERROR, "yq-lib")
}

// Apply feeds input through each expression in order, the output of one
// becoming the input of the next. No expressions returns input unchanged.
func Apply(input string, expressions []string) (string, error) {
	current := input
	for _, expr := range expressions {
		if strings.TrimSpace(expr) == "" {
			continue
		}
		next, err := evaluate(current, expr)
		if err != nil {
			return "", fmt.Errorf("yq expression %q: %w", expr, err)
		}
		current = next
	}
	if len(expressions) == 0 {
		return input, nil
	}
	return strings.TrimSpace(current), nil
}

func evaluate(input, expression string) (string, error) {
	documents, err := yqlib.ReadDocuments(strings.NewReader(input), yqlib.NewYamlDecoder(yqlib.YamlPreferences{}))
	if err != nil {
		return "", fmt.Errorf("parse yaml: %w", err)
	}
	if documents.Len() == 0 {
		return "", nil
	}

	nodes := make([]*yqlib.CandidateNode, 0, documents.Len())
	for el := documents.Front(); el != nil; el = el.Next() {
		if node, ok := el.Value.(*yqlib.CandidateNode); ok {
			nodes = append(nodes, node)
		}
	}

	results, err := yqlib.NewAllAtOnceEvaluator().EvaluateNodes(expression, nodes...)
	if err != nil {
		return "", err
	}

	encoder := yqlib.NewYamlEncoder(yqlib.YamlPreferences{
		Indent:       2,
		UnwrapScalar: true,
	})

	var out strings.Builder
	for el := results.Front(); el != nil; el = el.Next() {
		node, ok := el.Value.(*yqlib.CandidateNode)
		if !ok {
			continue
		}
		if err := encoder.Encode(&out, node); err != nil {
			return "", fmt.Errorf("encode result: %w", err)
		}
	}
	return out.String(), nil
}
