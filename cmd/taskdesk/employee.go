package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var employeeCmd = &cobra.Command{
	Use:   "employee",
	Short: "Manage the employee directory",
}

var employeeAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add an employee",
	RunE:  runEmployeeAdd,
}

var employeeListCmd = &cobra.Command{
	Use:   "list",
	Short: "List employees",
	RunE:  runEmployeeList,
}

var (
	empName   string
	empEmail  string
	empStatus string
)

func init() {
	employeeCmd.AddCommand(employeeAddCmd, employeeListCmd)

	employeeAddCmd.Flags().StringVar(&empName, "name", "", "Employee name (required)")
	employeeAddCmd.Flags().StringVar(&empEmail, "email", "", "Employee email (required)")
	employeeAddCmd.MarkFlagRequired("name")
	employeeAddCmd.MarkFlagRequired("email")

	employeeListCmd.Flags().StringVar(&empStatus, "status", "", "Filter by status (active, inactive)")
}

func runEmployeeAdd(cmd *cobra.Command, args []string) error {
	body := map[string]string{
		"name":  empName,
		"email": empEmail,
	}

	resp, err := apiPost("/employees", body)
	if err != nil {
		return err
	}

	var result map[string]interface{}
	if err := json.Unmarshal(resp, &result); err != nil {
		return err
	}
	fmt.Printf("Created employee: %s\n", result["id"])
	return nil
}

func runEmployeeList(cmd *cobra.Command, args []string) error {
	url := "/employees"
	if empStatus != "" {
		url += "?status=" + empStatus
	}

	resp, err := apiGet(url)
	if err != nil {
		return err
	}

	var emps []map[string]interface{}
	if err := json.Unmarshal(resp, &emps); err != nil {
		return err
	}

	if len(emps) == 0 {
		fmt.Println("No employees found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tEMAIL\tSTATUS")
	for _, e := range emps {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			truncateID(e["id"].(string)), e["name"], e["email"], e["status"])
	}
	w.Flush()
	return nil
}
