/*
Copyright © 2025 Valentyn Solomko <valentyn.solomko@gmail.com>

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/valpere/mythmaker/internal/config"
	"github.com/valpere/mythmaker/internal/gateway"
	"github.com/valpere/mythmaker/internal/orchestrator"
	"github.com/valpere/mythmaker/internal/role"
	"github.com/valpere/mythmaker/internal/store"
)

// loadRoles returns the default roles merged with the configured override
// file, if any.
func loadRoles(cfg *config.Config) (role.Set, error) {
	if cfg.RolesFile == "" {
		return role.Defaults(), nil
	}
	return role.LoadFile(cfg.RolesFile)
}

// buildOrchestrator constructs the Gemini gateway and wires the four roles
// onto it. A missing API key fails here, before any call is made.
func buildOrchestrator(ctx context.Context, cfg *config.Config) (*orchestrator.Orchestrator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	roles, err := loadRoles(cfg)
	if err != nil {
		return nil, err
	}

	refineCfg, err := cfg.RefineConfig()
	if err != nil {
		return nil, err
	}

	client, err := gateway.NewGeminiClient(ctx, cfg.APIKey, cfg.BaseURL)
	if err != nil {
		return nil, err
	}

	gw, err := gateway.NewGeminiGateway(client.Models, cfg.GatewayOptions())
	if err != nil {
		return nil, err
	}

	return orchestrator.New(gw, roles, orchestrator.OrchestratorConfig{Refine: refineCfg}), nil
}

// openStore opens the session archive, creating its directory.
func openStore(path string) (*store.Store, error) {
	if path == "" {
		return nil, fmt.Errorf("no session archive configured: pass --db or set %s_DB", config.EnvPrefix)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := store.New(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}

// writeOutput writes content to path, or to stdout when path is empty.
func writeOutput(path, content string) error {
	if path == "" {
		_, err := fmt.Fprint(os.Stdout, content)
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write output file: %w", err)
	}
	return nil
}
