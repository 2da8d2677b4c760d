package record

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/reader"
	"github.com/xitongsys/parquet-go/writer"
)

//go:embed schema.json
var schemaJSON []byte

type ParquetSchema struct {
	Name   string         `json:"name"`
	Fields []ParquetField `json:"fields"`
}

type ParquetField struct {
	Name     string      `json:"name"`
	Type     interface{} `json:"type"`
	Nullable bool        `json:"nullable"`
}

// Schema returns the published column layout of GameRecord files.
func Schema() (ParquetSchema, error) {
	var schema ParquetSchema
	if err := json.Unmarshal(schemaJSON, &schema); err != nil {
		return ParquetSchema{}, err
	}
	return schema, nil
}

// WriteParquet drains records into a SNAPPY-compressed parquet file. The
// channel must be closed by the caller.
func WriteParquet(path string, records <-chan GameRecord, parallel int64) error {
	schema, err := Schema()
	if err != nil {
		return err
	}
	if err := validateSchema(schema, GameRecord{}); err != nil {
		return err
	}
	if parallel <= 0 {
		parallel = 1
	}

	fileWriter, err := local.NewLocalFileWriter(path)
	if err != nil {
		return err
	}
	defer fileWriter.Close()

	parquetWriter, err := writer.NewParquetWriter(fileWriter, new(GameRecord), parallel)
	if err != nil {
		return err
	}
	parquetWriter.CompressionType = parquet.CompressionCodec_SNAPPY

	for record := range records {
		if err := parquetWriter.Write(record); err != nil {
			return err
		}
	}
	if err := parquetWriter.WriteStop(); err != nil {
		return err
	}
	return fileWriter.Close()
}

// WriteRecords writes a slice of records to path.
func WriteRecords(path string, records []GameRecord) error {
	ch := make(chan GameRecord)
	errCh := make(chan error, 1)
	go func() {
		errCh <- WriteParquet(path, ch, 1)
	}()
	for _, r := range records {
		select {
		case ch <- r:
		case err := <-errCh:
			return err
		}
	}
	close(ch)
	return <-errCh
}

// ScanParquet calls fn for every record in path, reading in batches.
func ScanParquet(path string, parallel int64, fn func(GameRecord) error) error {
	absPath := path
	if !filepath.IsAbs(path) {
		if resolved, err := filepath.Abs(path); err == nil {
			absPath = resolved
		}
	}
	if parallel <= 0 {
		parallel = 1
	}
	fileReader, err := local.NewLocalFileReader(absPath)
	if err != nil {
		return err
	}
	defer fileReader.Close()

	parquetReader, err := reader.NewParquetReader(fileReader, new(GameRecord), parallel)
	if err != nil {
		return err
	}
	defer parquetReader.ReadStop()

	rows := int(parquetReader.GetNumRows())
	batchSize := 1024
	for offset := 0; offset < rows; offset += batchSize {
		if remain := rows - offset; remain < batchSize {
			batchSize = remain
		}
		batch := make([]GameRecord, batchSize)
		if err := parquetReader.Read(&batch); err != nil {
			return err
		}
		for i := range batch {
			if err := fn(batch[i]); err != nil {
				return err
			}
		}
	}
	return nil
}

// ReadParquet loads every record in path.
func ReadParquet(path string, parallel int64) ([]GameRecord, error) {
	var records []GameRecord
	err := ScanParquet(path, parallel, func(r GameRecord) error {
		records = append(records, r)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

func validateSchema(schema ParquetSchema, sample any) error {
	schemaFields := make(map[string]struct{}, len(schema.Fields))
	for _, field := range schema.Fields {
		schemaFields[field.Name] = struct{}{}
	}
	structFields := structParquetFieldNames(sample)
	missing := diffKeys(schemaFields, structFields)
	extra := diffKeys(structFields, schemaFields)
	if len(missing) > 0 || len(extra) > 0 {
		return fmt.Errorf("parquet schema mismatch: missing=%v extra=%v", missing, extra)
	}
	return nil
}

func structParquetFieldNames(sample any) map[string]struct{} {
	fields := map[string]struct{}{}
	v := reflect.TypeOf(sample)
	for i := 0; i < v.NumField(); i++ {
		if name := parseParquetName(v.Field(i).Tag.Get("parquet")); name != "" {
			fields[name] = struct{}{}
		}
	}
	return fields
}

func parseParquetName(tag string) string {
	for _, part := range strings.Split(tag, ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) == 2 && kv[0] == "name" {
			return kv[1]
		}
	}
	return ""
}

func diffKeys(a, b map[string]struct{}) []string {
	var diff []string
	for key := range a {
		if _, ok := b[key]; !ok {
			diff = append(diff, key)
		}
	}
	return diff
}
