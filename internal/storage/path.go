package storage

import (
	"fmt"
	"path"
	"regexp"
	"sort"
	"strings"
)

var tableNamePattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]{0,62}$`)

// TableFiles groups parquet objects by the first path component of their key,
// which names the table. Keys look like "<table>/date=2026-02-19/part-1.parquet".
func TableFiles(objects []ObjectInfo) (map[string][]ObjectInfo, error) {
	grouped := map[string][]ObjectInfo{}
	for _, object := range objects {
		if !strings.EqualFold(path.Ext(object.Key), ".parquet") {
			continue
		}
		tableName, err := TableFromKey(object.Key)
		if err != nil {
			return nil, err
		}
		grouped[tableName] = append(grouped[tableName], object)
	}
	for tableName := range grouped {
		files := grouped[tableName]
		sort.Slice(files, func(i, j int) bool { return files[i].Key < files[j].Key })
	}
	return grouped, nil
}

func TableFromKey(key string) (string, error) {
	cleaned := path.Clean(strings.TrimPrefix(strings.TrimSpace(key), "/"))
	parts := strings.SplitN(cleaned, "/", 2)
	if len(parts) < 2 || parts[1] == "" {
		return "", fmt.Errorf("object key %q has no table directory", key)
	}
	if err := ValidateTableName(parts[0]); err != nil {
		return "", err
	}
	return parts[0], nil
}

func ValidateTableName(value string) error {
	if !tableNamePattern.MatchString(value) {
		return fmt.Errorf("invalid table name: %q", value)
	}
	return nil
}
