// Command basetable-schema resolves a field schema from a JSON/YAML file or
// an OpenAPI document and prints the normalised form, so schemas can be
// checked before the table that uses them ships.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/CalistaF0X/basetable/pkg/openapi"
	"github.com/CalistaF0X/basetable/pkg/schema"
)

func main() {
	source := flag.String("source", "", "schema file (.json/.yaml) or OpenAPI document")
	operation := flag.String("operation", "", "operation ID when the source is an OpenAPI document")
	output := flag.String("output", "", "output file (stdout if empty)")
	flag.Parse()

	if strings.TrimSpace(*source) == "" {
		log.Fatal("a -source file is required")
	}

	fields, err := resolve(context.Background(), *source, *operation)
	if err != nil {
		log.Fatalf("Failed to resolve schema: %v", err)
	}

	encoded, err := json.MarshalIndent(fields, "", "  ")
	if err != nil {
		log.Fatalf("Failed to encode schema: %v", err)
	}

	if *output != "" {
		if err := os.WriteFile(*output, encoded, 0o644); err != nil {
			log.Fatalf("Failed to write output: %v", err)
		}
		fmt.Printf("Schema written to %s\n", *output)
		return
	}
	fmt.Println(string(encoded))
}

func resolve(ctx context.Context, source, operation string) ([]schema.Field, error) {
	if operation != "" {
		raw, err := os.ReadFile(source)
		if err != nil {
			return nil, err
		}
		return openapi.FieldsFromDocument(ctx, raw, operation)
	}
	fields, err := schema.LoadFile(source)
	if err != nil {
		return nil, err
	}
	if err := schema.Validate(fields); err != nil {
		return nil, err
	}
	return fields, nil
}
