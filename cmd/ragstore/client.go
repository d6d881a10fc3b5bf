package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	httpserver "github.com/fyrsmithlabs/ragstore/internal/http"
	"github.com/fyrsmithlabs/ragstore/internal/serializer"
)

// Flags shared by the client commands.
var (
	flagTenant       string
	flagNodeType     string
	flagEntity       string
	flagOutput       string
	flagInput        string
	flagSourceTenant string
	flagTargetTenant string
	flagSourceEntity string
	flagTargetEntity string
)

func init() {
	exportCmd.Flags().StringVar(&flagTenant, "tenant", "", "tenant id")
	exportCmd.Flags().StringVar(&flagNodeType, "node-type", "document", "entity node type (document|resource)")
	exportCmd.Flags().StringVar(&flagEntity, "entity", "", "entity id")
	exportCmd.Flags().StringVarP(&flagOutput, "output", "o", "-", "output file (- for stdout)")

	importCmd.Flags().StringVar(&flagTenant, "tenant", "", "target tenant id")
	importCmd.Flags().StringVar(&flagNodeType, "node-type", "document", "target node type (document|resource)")
	importCmd.Flags().StringVar(&flagEntity, "entity", "", "target entity id")
	importCmd.Flags().StringVarP(&flagInput, "input", "i", "-", "bundle file (- for stdin)")

	duplicateCmd.Flags().StringVar(&flagSourceTenant, "source-tenant", "", "source tenant id")
	duplicateCmd.Flags().StringVar(&flagTargetTenant, "target-tenant", "", "target tenant id")
	duplicateCmd.Flags().StringVar(&flagNodeType, "node-type", "document", "node type (document|resource)")
	duplicateCmd.Flags().StringVar(&flagSourceEntity, "source-entity", "", "source entity id")
	duplicateCmd.Flags().StringVar(&flagTargetEntity, "target-entity", "", "target entity id")
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check ragstore server health",
	RunE: func(cmd *cobra.Command, args []string) error {
		var resp httpserver.HealthResponse
		if err := getJSON("/health", &resp); err != nil {
			return err
		}
		fmt.Printf("status: %s\n", resp.Status)
		if resp.RerankerState != "" {
			fmt.Printf("reranker: %s\n", resp.RerankerState)
		}
		return nil
	},
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export an entity's points as a bundle file",
	RunE: func(cmd *cobra.Command, args []string) error {
		var bundle serializer.Bundle
		err := postJSON("/api/v1/export", httpserver.ExportRequest{
			EntityRef: httpserver.EntityRef{NodeType: flagNodeType, EntityID: flagEntity},
			TenantID:  flagTenant,
		}, &bundle)
		if err != nil {
			return err
		}

		encoded, err := json.Marshal(bundle)
		if err != nil {
			return fmt.Errorf("encoding bundle: %w", err)
		}
		if flagOutput == "-" {
			_, err = os.Stdout.Write(encoded)
			return err
		}
		if err := os.WriteFile(flagOutput, encoded, 0o600); err != nil {
			return fmt.Errorf("writing bundle: %w", err)
		}
		fmt.Fprintf(os.Stderr, "exported %d points to %s\n", bundle.Count, flagOutput)
		return nil
	},
}

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import a bundle file into a tenant",
	RunE: func(cmd *cobra.Command, args []string) error {
		var raw []byte
		var err error
		if flagInput == "-" {
			raw, err = io.ReadAll(os.Stdin)
		} else {
			raw, err = os.ReadFile(flagInput)
		}
		if err != nil {
			return fmt.Errorf("reading bundle: %w", err)
		}

		var bundle serializer.Bundle
		if err := json.Unmarshal(raw, &bundle); err != nil {
			return fmt.Errorf("decoding bundle: %w", err)
		}

		var resp httpserver.ImportResponse
		err = postJSON("/api/v1/import", httpserver.ImportRequest{
			EntityRef: httpserver.EntityRef{NodeType: flagNodeType, EntityID: flagEntity},
			TenantID:  flagTenant,
			Bundle:    bundle,
		}, &resp)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "imported %d points\n", resp.Points)
		return nil
	},
}

var duplicateCmd = &cobra.Command{
	Use:   "duplicate",
	Short: "Copy an entity's points to another tenant",
	RunE: func(cmd *cobra.Command, args []string) error {
		var resp httpserver.DuplicateResponse
		err := postJSON("/api/v1/duplicate", httpserver.DuplicateRequest{
			SourceTenant: flagSourceTenant,
			TargetTenant: flagTargetTenant,
			Source:       httpserver.EntityRef{NodeType: flagNodeType, EntityID: flagSourceEntity},
			Target:       httpserver.EntityRef{NodeType: flagNodeType, EntityID: flagTargetEntity},
		}, &resp)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "duplicated %d points\n", resp.Points)
		return nil
	},
}

var httpClient = &http.Client{Timeout: 5 * time.Minute}

func getJSON(path string, out interface{}) error {
	resp, err := httpClient.Get(serverURL + path)
	if err != nil {
		return fmt.Errorf("connecting to server: %w", err)
	}
	defer resp.Body.Close()
	return decodeResponse(resp, out)
}

func postJSON(path string, body, out interface{}) error {
	encoded, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}
	resp, err := httpClient.Post(serverURL+path, "application/json", bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("connecting to server: %w", err)
	}
	defer resp.Body.Close()
	return decodeResponse(resp, out)
}

func decodeResponse(resp *http.Response, out interface{}) error {
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, msg)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
