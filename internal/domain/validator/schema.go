package validator

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed meta.schema.json
var embeddedMetaSchema []byte

const metaSchemaURL = "https://gap.shaga.xyz/schema/meta-0.2.0.json"

// CompileMetaSchema compiles a meta.json JSON Schema document.
func CompileMetaSchema(data []byte) (*jsonschema.Schema, error) {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	if err := c.AddResource(metaSchemaURL, bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("add meta schema: %w", err)
	}
	s, err := c.Compile(metaSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile meta schema: %w", err)
	}
	return s, nil
}

// LoadMetaSchema compiles the schema at path, or the embedded schema when
// path is empty.
func LoadMetaSchema(path string) (*jsonschema.Schema, error) {
	if path == "" {
		return CompileMetaSchema(embeddedMetaSchema)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return CompileMetaSchema(data)
}

// schemaMessages flattens a validation failure into one line per leaf.
func schemaMessages(err error) []string {
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return []string{err.Error()}
	}
	var out []string
	var walk func(*jsonschema.ValidationError)
	walk = func(e *jsonschema.ValidationError) {
		if len(e.Causes) == 0 {
			loc := strings.TrimPrefix(e.InstanceLocation, "/")
			if loc == "" {
				out = append(out, "meta.json: "+e.Message)
			} else {
				out = append(out, fmt.Sprintf("meta.json field %s: %s", strings.ReplaceAll(loc, "/", "."), e.Message))
			}
			return
		}
		for _, c := range e.Causes {
			walk(c)
		}
	}
	walk(ve)
	return out
}
