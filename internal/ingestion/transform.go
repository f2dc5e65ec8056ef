package ingestion

// TransformRows applies a column mapping to every row, producing one field
// bag per row in input order. Only mapped, non-empty source values are
// copied; absent and empty values are omitted rather than written as "".
func TransformRows(rows []map[string]string, mapping map[string]string) []map[string]any {
	entities := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		fields := make(map[string]any)
		for source, target := range mapping {
			value, ok := row[source]
			if !ok || value == "" {
				continue
			}
			fields[target] = value
		}
		entities = append(entities, fields)
	}
	return entities
}
