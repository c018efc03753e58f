// Package instance reads, writes and generates integrated packing and
// routing instances.
package instance

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"palletroute/internal/model"
)

type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatDZN  Format = "dzn"
)

// FormatFor picks the format from a file extension; unknown extensions are
// sniffed on read and written as JSON.
func FormatFor(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	case ".dzn":
		return FormatDZN
	case ".json":
		return FormatJSON
	}
	return ""
}

// document is the on-disk shape: the instance plus the derived padding width.
type document struct {
	model.Instance      `yaml:",inline"`
	MaxItemsPerCustomer int `json:"maxItemsPerCustomer,omitempty" yaml:"maxItemsPerCustomer,omitempty"`
}

// Decode parses an instance. An empty format sniffs JSON by a leading '{'.
func Decode(r io.Reader, format Format) (model.Instance, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return model.Instance{}, err
	}
	if format == "" {
		format = FormatYAML
		if t := bytes.TrimSpace(data); len(t) > 0 && t[0] == '{' {
			format = FormatJSON
		}
	}
	var doc document
	switch format {
	case FormatJSON:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		err = dec.Decode(&doc)
	case FormatYAML:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		err = dec.Decode(&doc)
	default:
		return model.Instance{}, fmt.Errorf("decode instance: unsupported format %q", format)
	}
	if err != nil {
		return model.Instance{}, fmt.Errorf("decode instance: %w", err)
	}
	if doc.MaxItemsPerCustomer > 0 && doc.MaxItemsPerCustomer < doc.Instance.MaxItemsPerCustomer() {
		return model.Instance{}, fmt.Errorf("decode instance: maxItemsPerCustomer %d below item count %d", doc.MaxItemsPerCustomer, doc.Instance.MaxItemsPerCustomer())
	}
	return doc.Instance, nil
}

func Encode(w io.Writer, inst model.Instance, format Format) error {
	doc := document{Instance: inst, MaxItemsPerCustomer: inst.MaxItemsPerCustomer()}
	switch format {
	case FormatJSON, "":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(doc)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return err
		}
		return enc.Close()
	case FormatDZN:
		_, err := io.WriteString(w, EncodeDZN(inst))
		return err
	}
	return fmt.Errorf("encode instance: unsupported format %q", format)
}

// Load reads an instance file. A missing name defaults to the file stem.
func Load(path string) (model.Instance, error) {
	f, err := os.Open(path)
	if err != nil {
		return model.Instance{}, err
	}
	defer f.Close()
	inst, err := Decode(f, FormatFor(path))
	if err != nil {
		return model.Instance{}, fmt.Errorf("%s: %w", path, err)
	}
	if inst.Name == "" {
		inst.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return inst, nil
}

func Save(path string, inst model.Instance) error {
	var buf bytes.Buffer
	if err := Encode(&buf, inst, FormatFor(path)); err != nil {
		return err
	}
	return os.WriteFile(path, buf.Bytes(), 0o644)
}

// EncodeDZN renders the instance as MiniZinc data for the integrated model.
func EncodeDZN(inst model.Instance) string {
	var b strings.Builder
	fmt.Fprintf(&b, "N = %d;\n", inst.N)
	fmt.Fprintf(&b, "Capacity = %d;\n", inst.Capacity)
	fmt.Fprintf(&b, "nbVehicles = %d;\n", inst.NbVehicles)
	fmt.Fprintf(&b, "maxVisitsPerCustomer = %d;\n", inst.MaxVisitsPerCustomer)
	fmt.Fprintf(&b, "ItemsPerCustomer = [%s];\n", joinInts(inst.ItemsPerCustomer))
	fmt.Fprintf(&b, "maxItemsPerCustomer = %d;\n", inst.MaxItemsPerCustomer())
	fmt.Fprintf(&b, "binCapacity = %d;\n", inst.BinCapacity)
	writeMatrix(&b, "SizesOfItems", inst.SizesOfItems)
	writeMatrix(&b, "Distance", inst.Distance)
	return b.String()
}

func writeMatrix(b *strings.Builder, name string, rows [][]int) {
	fmt.Fprintf(b, "%s = [|", name)
	for i, row := range rows {
		if i == 0 {
			b.WriteString("\n  ")
		} else {
			b.WriteString("\n| ")
		}
		b.WriteString(joinInts(row))
	}
	b.WriteString("\n|];\n")
}

func joinInts(xs []int) string {
	parts := make([]string, len(xs))
	for i, x := range xs {
		parts[i] = fmt.Sprint(x)
	}
	return strings.Join(parts, ", ")
}
