package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var exportConfigSchemaCmd = &cobra.Command{
	Use:   "export-config-schema",
	Short: "emit the JSON schema of the configuration structure on stdout",
	RunE:  runExportConfigSchema,
}

// jsonSchemaProperty is a hand-rolled subset of JSON Schema Draft 7 —
// no schema-generation library appears anywhere in the example pack,
// so this stays a small, explicit emitter rather than reaching for an
// unfetched dependency (see DESIGN.md).
type jsonSchemaProperty struct {
	Type                 string                         `json:"type"`
	Description          string                         `json:"description,omitempty"`
	Items                *jsonSchemaProperty            `json:"items,omitempty"`
	Properties           map[string]*jsonSchemaProperty `json:"properties,omitempty"`
	AdditionalProperties *jsonSchemaProperty             `json:"additionalProperties,omitempty"`
	Required             []string                       `json:"required,omitempty"`
	Enum                 []string                       `json:"enum,omitempty"`
}

func configurationSchema() map[string]any {
	host := &jsonSchemaProperty{
		Type: "object",
		Properties: map[string]*jsonSchemaProperty{
			"id":       {Type: "string", Description: "assigned automatically if omitted"},
			"name":     {Type: "string"},
			"hostname": {Type: "string"},
			"check":    {Type: "string", Enum: []string{"none", "ping", "ssh", "kube"}},
			"config":   {Type: "object"},
			"groups":   {Type: "array", Items: &jsonSchemaProperty{Type: "string"}},
		},
		Required: []string{"name", "hostname"},
	}

	service := &jsonSchemaProperty{
		Type: "object",
		Properties: map[string]*jsonSchemaProperty{
			"id":            {Type: "string", Description: "assigned automatically if omitted"},
			"name":          {Type: "string"},
			"description":   {Type: "string"},
			"type":          {Type: "string", Enum: []string{"cli", "ssh", "ping", "http", "tls"}},
			"cron_schedule": {Type: "string", Description: "cron expression: 5 fields, or 6 with a leading seconds field"},
			"groups":        {Type: "array", Items: &jsonSchemaProperty{Type: "string"}},
			"extra_config":  {Type: "object"},
		},
		Required: []string{"name", "type", "cron_schedule"},
	}

	hostGroup := &jsonSchemaProperty{
		Type: "object",
		Properties: map[string]*jsonSchemaProperty{
			"id":   {Type: "string"},
			"name": {Type: "string"},
		},
		Required: []string{"name"},
	}

	pushover := &jsonSchemaProperty{
		Type: "object",
		Properties: map[string]*jsonSchemaProperty{
			"token":    {Type: "string"},
			"user_key": {Type: "string"},
			"states":   {Type: "array", Items: &jsonSchemaProperty{Type: "string"}},
		},
	}

	root := map[string]*jsonSchemaProperty{
		"database_file":                 {Type: "string"},
		"listen_address":                {Type: "string"},
		"listen_port":                   {Type: "integer"},
		"frontend_url":                  {Type: "string"},
		"hosts":                         {Type: "object", AdditionalProperties: host},
		"host_groups":                   {Type: "object", AdditionalProperties: hostGroup},
		"services":                      {Type: "object", AdditionalProperties: service},
		"local_services":                {Type: "object", AdditionalProperties: service},
		"oidc_enabled":                  {Type: "boolean"},
		"pushover":                      pushover,
		"cert_file":                     {Type: "string"},
		"cert_key":                      {Type: "string"},
		"max_concurrent_checks":         {Type: "integer"},
		"max_history_entries_per_check": {Type: "integer"},
		"session_cache_redis_addr":      {Type: "string"},
	}

	return map[string]any{
		"$schema":    "http://json-schema.org/draft-07/schema#",
		"title":      "maremma configuration",
		"type":       "object",
		"properties": root,
		"required":   []string{"database_file"},
	}
}

func runExportConfigSchema(cmd *cobra.Command, args []string) error {
	out, err := json.MarshalIndent(configurationSchema(), "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
