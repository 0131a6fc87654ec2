package tool

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDeleteTool_Execute(t *testing.T) {
	tmpDir := t.TempDir()
	testFile := filepath.Join(tmpDir, "doomed.txt")
	if err := os.WriteFile(testFile, []byte("bye"), 0644); err != nil {
		t.Fatalf("failed to create file: %v", err)
	}

	tool := NewDeleteTool(tmpDir)
	ctx := context.Background()
	toolCtx := testContext()

	input := json.RawMessage(`{"filePath": "` + testFile + `"}`)
	result, err := tool.Execute(ctx, input, toolCtx)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	if !strings.Contains(result.Output, "Deleted") {
		t.Error("Output should indicate the file was deleted")
	}

	if _, err := os.Stat(testFile); !os.IsNotExist(err) {
		t.Error("File should no longer exist")
	}
}

func TestDeleteTool_MissingFile(t *testing.T) {
	tmpDir := t.TempDir()
	testFile := filepath.Join(tmpDir, "nonexistent.txt")

	tool := NewDeleteTool(tmpDir)
	ctx := context.Background()
	toolCtx := testContext()

	input := json.RawMessage(`{"filePath": "` + testFile + `"}`)
	_, err := tool.Execute(ctx, input, toolCtx)
	if err == nil {
		t.Error("Expected error for missing file")
	}
}

func TestDeleteTool_RefusesDirectory(t *testing.T) {
	tmpDir := t.TempDir()
	subDir := filepath.Join(tmpDir, "subdir")
	if err := os.Mkdir(subDir, 0755); err != nil {
		t.Fatalf("failed to create dir: %v", err)
	}

	tool := NewDeleteTool(tmpDir)
	ctx := context.Background()
	toolCtx := testContext()

	input := json.RawMessage(`{"filePath": "` + subDir + `"}`)
	_, err := tool.Execute(ctx, input, toolCtx)
	if err == nil {
		t.Error("Expected error when deleting a directory")
	}

	if _, statErr := os.Stat(subDir); statErr != nil {
		t.Error("Directory should not have been removed")
	}
}

func TestDeleteTool_InvalidInput(t *testing.T) {
	tool := NewDeleteTool("/tmp")
	ctx := context.Background()
	toolCtx := testContext()

	input := json.RawMessage(`{invalid json}`)
	_, err := tool.Execute(ctx, input, toolCtx)
	if err == nil {
		t.Error("Expected error for invalid JSON input")
	}
}

func TestDeleteTool_Metadata(t *testing.T) {
	tmpDir := t.TempDir()
	testFile := filepath.Join(tmpDir, "meta.txt")
	if err := os.WriteFile(testFile, []byte("x"), 0644); err != nil {
		t.Fatalf("failed to create file: %v", err)
	}

	tool := NewDeleteTool(tmpDir)
	ctx := context.Background()
	toolCtx := testContext()

	input := json.RawMessage(`{"filePath": "` + testFile + `"}`)
	result, err := tool.Execute(ctx, input, toolCtx)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	if result.Metadata["file"] != testFile {
		t.Errorf("Expected file %q in metadata, got %v", testFile, result.Metadata["file"])
	}
}

func TestDeleteTool_Properties(t *testing.T) {
	tool := NewDeleteTool("/tmp")

	if tool.ID() != "delete_file" {
		t.Errorf("Expected ID 'delete_file', got %q", tool.ID())
	}

	desc := tool.Description()
	if !strings.Contains(desc, "irreversible") {
		t.Error("Description should warn the operation is irreversible")
	}

	params := tool.Parameters()
	var schema map[string]any
	if err := json.Unmarshal(params, &schema); err != nil {
		t.Errorf("Parameters should be valid JSON: %v", err)
	}
	props, ok := schema["properties"].(map[string]any)
	if !ok {
		t.Fatal("Schema should have properties")
	}
	if _, ok := props["filePath"]; !ok {
		t.Error("Schema should have filePath property")
	}
}

func TestDeleteTool_EinoTool(t *testing.T) {
	tool := NewDeleteTool("/tmp")
	einoTool := tool.EinoTool()
	if einoTool == nil {
		t.Fatal("EinoTool should not return nil")
	}

	info, err := einoTool.Info(context.Background())
	if err != nil {
		t.Fatalf("Info failed: %v", err)
	}
	if info.Name != "delete_file" {
		t.Errorf("Expected name 'delete_file', got %q", info.Name)
	}
}
