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
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var rolesCmd = &cobra.Command{
	Use:   "roles",
	Short: "Print the effective role definitions",
	Long: `Print the four roles after applying the --roles override file.

The output is valid input for --roles and can be edited as a starting point.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		roles, err := loadRoles(cfg)
		if err != nil {
			return err
		}

		out, err := yaml.Marshal(roles)
		if err != nil {
			return fmt.Errorf("failed to encode roles: %w", err)
		}
		fmt.Print(string(out))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(rolesCmd)
}
