package api

import (
	"net/http"
)

type schemaTable struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	DDL         string `json:"ddl"`
}

func handleSchema(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Schema == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "SCHEMA_NOT_CONFIGURED", "schema dependency is not configured", false, nil)
		return
	}

	tables := deps.Schema.Tables()
	out := make([]schemaTable, 0, len(tables))
	for _, table := range tables {
		ddl, err := deps.Schema.DDL(r.Context(), []string{table.Name})
		if err != nil {
			// Descriptions are still useful when the store is unreachable.
			ddl = ""
		}
		out = append(out, schemaTable{Name: table.Name, Description: table.Description, DDL: ddl})
	}

	writeJSON(w, http.StatusOK, map[string]any{"tables": out})
}
