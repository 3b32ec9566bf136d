package ast

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/roach88/linkgraph/internal/model"
)

// DomainFingerprint prefixes the hashed wire bytes of a node.
const DomainFingerprint = "linkgraph/ast/v1"

// Fingerprint returns the hex SHA-256 of the node's wire bytes with domain
// separation: SHA256(domain + 0x00 + bytes).
func (c *Codec) Fingerprint(n Node) (string, error) {
	data, err := c.Encode(n)
	if err != nil {
		return "", fmt.Errorf("fingerprint: %w", err)
	}
	h := sha256.New()
	h.Write([]byte(DomainFingerprint))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Dump renders n as an indented tree, one node per line.
func Dump(n Node) string {
	var b strings.Builder
	dump(&b, n, 0)
	return b.String()
}

func dump(b *strings.Builder, n Node, depth int) {
	b.WriteString(strings.Repeat("  ", depth))
	if isNil(n) {
		b.WriteString("<nil>\n")
		return
	}
	b.WriteString(label(n))
	if ext := n.Extension(); len(ext) > 0 {
		b.WriteString(" ext=")
		b.WriteString(hex.EncodeToString(ext))
	}
	b.WriteByte('\n')
	for _, c := range Children(n) {
		dump(b, c, depth+1)
	}
}

func label(n Node) string {
	switch n := n.(type) {
	case *Scalar:
		return fmt.Sprintf("Scalar %s %s", n.Type, formatValue(n.Value))
	case *Field:
		return fmt.Sprintf("Field %s %s", n.Name, n.Type)
	case *Sort:
		if n.Descending {
			return "Sort desc"
		}
		return "Sort asc"
	case *Parameter:
		return fmt.Sprintf("Parameter #%d %s", n.Index, n.Type)
	case *QueryRoot:
		if n.IsLink {
			return "QueryRoot " + n.ModelType + " link"
		}
		return "QueryRoot " + n.ModelType
	case *Page:
		return fmt.Sprintf("Page size=%d token=%s", n.Size, strconv.Quote(n.Token))
	case *Save:
		return fmt.Sprintf("Save %s key=%s", n.ModelType, model.KeyOf(n.Model))
	case *Delete:
		return fmt.Sprintf("Delete %s key=%s", n.ModelType, model.KeyOf(n.Model))
	case *TraverseOrigin:
		return "TraverseOrigin " + n.RootType
	case *EdgeFilter:
		arrow := "->"
		if n.Direction == KindInEdgeFilter {
			arrow = "<-"
		}
		return fmt.Sprintf("%s %s %s %s", n.Direction, n.EdgeType, arrow, n.NodeType)
	case *Returns:
		return fmt.Sprintf("Returns edges=%d nodes=%d terminal=%s", n.EdgeDepth, n.NodeDepth, n.Terminal)
	default:
		return n.Kind().String()
	}
}

func formatValue(v any) string {
	switch v := v.(type) {
	case nil:
		return "null"
	case string:
		return strconv.Quote(norm.NFC.String(v))
	case time.Time:
		return v.UTC().Format(time.RFC3339Nano)
	case []byte:
		return "0x" + hex.EncodeToString(v)
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprintf("%v", v)
	}
}
