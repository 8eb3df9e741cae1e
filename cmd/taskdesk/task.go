package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Manage tasks",
}

var taskAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a new task",
	RunE:  runTaskAdd,
}

var taskListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tasks",
	RunE:  runTaskList,
}

var taskShowCmd = &cobra.Command{
	Use:   "show [task-id]",
	Short: "Show task details",
	Args:  cobra.ExactArgs(1),
	RunE:  runTaskShow,
}

var taskStatusCmd = &cobra.Command{
	Use:   "status [task-id] [status]",
	Short: "Set a task's status",
	Args:  cobra.ExactArgs(2),
	RunE:  runTaskStatus,
}

var taskReassignCmd = &cobra.Command{
	Use:   "reassign [task-id]",
	Short: "Reassign a withdrawn or declined task",
	Args:  cobra.ExactArgs(1),
	RunE:  runTaskReassign,
}

var taskReopenCmd = &cobra.Command{
	Use:   "reopen [task-id]",
	Short: "Send a completed task back for correction",
	Args:  cobra.ExactArgs(1),
	RunE:  runTaskReopen,
}

var taskTimelineCmd = &cobra.Command{
	Use:   "timeline [task-id]",
	Short: "Show a task's activity feed",
	Args:  cobra.ExactArgs(1),
	RunE:  runTaskTimeline,
}

var (
	taskTitle     string
	taskDesc      string
	taskCategory  string
	taskPriority  string
	taskAssignee  string
	taskStatus    string
	declineType   string
	newEmployeeID string
	handoverNotes string
	actionReason  string
)

func init() {
	taskCmd.AddCommand(taskAddCmd, taskListCmd, taskShowCmd, taskStatusCmd, taskReassignCmd, taskReopenCmd, taskTimelineCmd)

	taskAddCmd.Flags().StringVar(&taskTitle, "title", "", "Task title (required)")
	taskAddCmd.Flags().StringVar(&taskDesc, "desc", "", "Task description")
	taskAddCmd.Flags().StringVar(&taskCategory, "category", "", "Task category")
	taskAddCmd.Flags().StringVar(&taskPriority, "priority", "", "Task priority")
	taskAddCmd.Flags().StringVar(&taskAssignee, "assign", "", "Employee ID to assign")
	taskAddCmd.MarkFlagRequired("title")

	taskListCmd.Flags().StringVar(&taskStatus, "status", "", "Filter by status")

	taskStatusCmd.Flags().StringVar(&declineType, "decline-type", "", "Decline type when status is declined_by_employee")

	taskReassignCmd.Flags().StringVar(&newEmployeeID, "to", "", "Employee ID to reassign to (required)")
	taskReassignCmd.Flags().StringVar(&actionReason, "reason", "", "Reassignment reason (required)")
	taskReassignCmd.Flags().StringVar(&handoverNotes, "notes", "", "Handover notes for the new assignee")
	taskReassignCmd.MarkFlagRequired("to")
	taskReassignCmd.MarkFlagRequired("reason")

	taskReopenCmd.Flags().StringVar(&actionReason, "reason", "", "Reopen reason (required)")
	taskReopenCmd.MarkFlagRequired("reason")
}

func runTaskAdd(cmd *cobra.Command, args []string) error {
	body := map[string]string{
		"title":       taskTitle,
		"description": taskDesc,
		"category":    taskCategory,
		"priority":    taskPriority,
		"assigned_to": taskAssignee,
	}

	resp, err := apiPost("/tasks", body)
	if err != nil {
		return err
	}

	var result map[string]interface{}
	if err := json.Unmarshal(resp, &result); err != nil {
		return err
	}

	fmt.Printf("Created task: %s\n", result["id"])
	return nil
}

func runTaskList(cmd *cobra.Command, args []string) error {
	url := "/tasks"
	if taskStatus != "" {
		url += "?status=" + taskStatus
	}

	resp, err := apiGet(url)
	if err != nil {
		return err
	}

	var tasks []map[string]interface{}
	if err := json.Unmarshal(resp, &tasks); err != nil {
		return err
	}

	if len(tasks) == 0 {
		fmt.Println("No tasks found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTITLE\tSTATUS\tASSIGNED TO\tDUE")
	for _, t := range tasks {
		id := truncateID(t["id"].(string))
		title := truncate(t["title"].(string), 40)
		status := t["status"].(string)
		assignedTo := ""
		if v, ok := t["assigned_to"].(string); ok {
			assignedTo = truncateID(v)
		}
		due := ""
		if v, ok := t["due_date"].(string); ok {
			due = v
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", id, title, status, assignedTo, due)
	}
	w.Flush()
	return nil
}

func runTaskShow(cmd *cobra.Command, args []string) error {
	resp, err := apiGet("/tasks/" + args[0])
	if err != nil {
		return err
	}

	var task map[string]interface{}
	if err := json.Unmarshal(resp, &task); err != nil {
		return err
	}

	fmt.Printf("ID:          %s\n", task["id"])
	fmt.Printf("Title:       %s\n", task["title"])
	fmt.Printf("Description: %s\n", task["description"])
	fmt.Printf("Status:      %s\n", task["status"])
	if v, ok := task["assigned_to"].(string); ok && v != "" {
		fmt.Printf("Assigned To: %s\n", v)
	}
	if v, ok := task["due_date"].(string); ok && v != "" {
		fmt.Printf("Due:         %s\n", v)
	}
	if v, ok := task["reopen_due_at"].(string); ok && v != "" {
		fmt.Printf("Reopen Due:  %s\n", v)
	}
	if latest, ok := task["latest_request"].(map[string]interface{}); ok {
		fmt.Printf("Latest Request: %s %s (%s)\n",
			truncateID(latest["id"].(string)), latest["request_type"], latest["effective_status"])
	}
	fmt.Printf("Created:     %s\n", task["created_at"])
	fmt.Printf("Updated:     %s\n", task["updated_at"])

	return nil
}

func runTaskStatus(cmd *cobra.Command, args []string) error {
	body := map[string]string{
		"status":       args[1],
		"decline_type": declineType,
	}
	if _, err := apiPost("/tasks/"+args[0]+"/status", body); err != nil {
		return err
	}
	fmt.Printf("Task %s set to %s\n", args[0], args[1])
	return nil
}

func runTaskReassign(cmd *cobra.Command, args []string) error {
	body := map[string]string{
		"new_employee_id": newEmployeeID,
		"reason":          actionReason,
		"handover_notes":  handoverNotes,
	}
	if _, err := apiPost("/tasks/"+args[0]+"/reassign", body); err != nil {
		return err
	}
	fmt.Printf("Task %s reassigned to %s\n", args[0], newEmployeeID)
	return nil
}

func runTaskReopen(cmd *cobra.Command, args []string) error {
	body := map[string]string{"reason": actionReason}
	resp, err := apiPost("/tasks/"+args[0]+"/reopen", body)
	if err != nil {
		return err
	}

	var task map[string]interface{}
	if err := json.Unmarshal(resp, &task); err != nil {
		return err
	}
	fmt.Printf("Task %s reopened, correction due %s\n", args[0], task["reopen_due_at"])
	return nil
}

func runTaskTimeline(cmd *cobra.Command, args []string) error {
	resp, err := apiGet("/tasks/" + args[0] + "/timeline")
	if err != nil {
		return err
	}

	var events []map[string]interface{}
	if err := json.Unmarshal(resp, &events); err != nil {
		return err
	}

	if len(events) == 0 {
		fmt.Println("No events found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "AT\tEVENT\tACTOR\tDETAIL")
	for _, ev := range events {
		detail := ""
		if v, ok := ev["detail"].(string); ok {
			detail = truncate(v, 50)
		}
		fmt.Fprintf(w, "%s\t%s\t%s/%s\t%s\n",
			ev["created_at"], ev["event_type"], ev["actor_role"], ev["actor_id"], detail)
	}
	w.Flush()
	return nil
}

// --- Helpers ---

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

func truncateID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}
