package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var requestCmd = &cobra.Command{
	Use:   "request",
	Short: "Manage modification requests",
}

var requestOpenCmd = &cobra.Command{
	Use:   "open [task-id]",
	Short: "Open a modification request against a task",
	Args:  cobra.ExactArgs(1),
	RunE:  runRequestOpen,
}

var requestListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the request queue",
	RunE:  runRequestList,
}

var requestShowCmd = &cobra.Command{
	Use:   "show [request-id]",
	Short: "Show request details and thread",
	Args:  cobra.ExactArgs(1),
	RunE:  runRequestShow,
}

var requestRespondCmd = &cobra.Command{
	Use:   "respond [request-id] [approved|rejected]",
	Short: "Respond to an admin-initiated request (employee)",
	Args:  cobra.ExactArgs(2),
	RunE:  runRequestRespond,
}

var requestApproveCmd = &cobra.Command{
	Use:   "approve [request-id]",
	Short: "Approve an employee-initiated request (admin)",
	Args:  cobra.ExactArgs(1),
	RunE:  runRequestApprove,
}

var requestRejectCmd = &cobra.Command{
	Use:   "reject [request-id]",
	Short: "Reject an employee-initiated request (admin)",
	Args:  cobra.ExactArgs(1),
	RunE:  runRequestReject,
}

var requestExecuteCmd = &cobra.Command{
	Use:   "execute [request-id]",
	Short: "Execute an approved request (admin)",
	Args:  cobra.ExactArgs(1),
	RunE:  runRequestExecute,
}

var requestMsgCmd = &cobra.Command{
	Use:   "msg [request-id] [text]",
	Short: "Post a message on a request thread",
	Args:  cobra.ExactArgs(2),
	RunE:  runRequestMsg,
}

var (
	reqOrigin    string
	reqType      string
	reqReason    string
	reqImpact    string
	reqSLAHours  int
	reqTitle     string
	reqDesc      string
	reqCategory  string
	reqPriority  string
	reqDueDate   string
	reqExtendTo  string
	reqNote      string
	filterStatus string
	filterOrigin string
)

func init() {
	requestCmd.AddCommand(requestOpenCmd, requestListCmd, requestShowCmd,
		requestRespondCmd, requestApproveCmd, requestRejectCmd, requestExecuteCmd, requestMsgCmd)

	requestOpenCmd.Flags().StringVar(&reqOrigin, "origin", "admin_initiated", "Origin: admin_initiated or employee_initiated")
	requestOpenCmd.Flags().StringVar(&reqType, "type", "edit", "Request type: edit, delete or extension")
	requestOpenCmd.Flags().StringVar(&reqReason, "reason", "", "Why the change is needed (required)")
	requestOpenCmd.Flags().StringVar(&reqImpact, "impact", "", "Impact note for delete requests")
	requestOpenCmd.Flags().IntVar(&reqSLAHours, "sla", 0, "Response SLA in hours (default from server policy)")
	requestOpenCmd.Flags().StringVar(&reqTitle, "title", "", "Proposed title")
	requestOpenCmd.Flags().StringVar(&reqDesc, "desc", "", "Proposed description")
	requestOpenCmd.Flags().StringVar(&reqCategory, "category", "", "Proposed category")
	requestOpenCmd.Flags().StringVar(&reqPriority, "priority", "", "Proposed priority")
	requestOpenCmd.Flags().StringVar(&reqDueDate, "due", "", "Proposed due date (RFC3339)")
	requestOpenCmd.Flags().StringVar(&reqExtendTo, "extend-to", "", "Requested new due date for extensions (RFC3339)")
	requestOpenCmd.MarkFlagRequired("reason")

	requestListCmd.Flags().StringVar(&filterStatus, "status", "", "Filter by status")
	requestListCmd.Flags().StringVar(&filterOrigin, "origin", "", "Filter by origin")

	requestRespondCmd.Flags().StringVar(&reqNote, "note", "", "Decision note (required)")
	requestRespondCmd.MarkFlagRequired("note")

	requestApproveCmd.Flags().StringVar(&reqNote, "note", "", "Admin note (required)")
	requestApproveCmd.MarkFlagRequired("note")

	requestRejectCmd.Flags().StringVar(&reqNote, "reason", "", "Rejection reason (required)")
	requestRejectCmd.MarkFlagRequired("reason")

	requestExecuteCmd.Flags().StringVar(&reqNote, "note", "", "Admin note recorded at execution (required)")
	requestExecuteCmd.MarkFlagRequired("note")
}

func parseRFC3339(flag, value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return nil, fmt.Errorf("invalid --%s: %w", flag, err)
	}
	return &t, nil
}

func runRequestOpen(cmd *cobra.Command, args []string) error {
	body := map[string]interface{}{
		"origin":       reqOrigin,
		"request_type": reqType,
		"reason":       reqReason,
		"impact_note":  reqImpact,
	}
	if reqSLAHours > 0 {
		body["sla_hours"] = reqSLAHours
	}

	changes := map[string]interface{}{}
	if reqTitle != "" {
		changes["title"] = reqTitle
	}
	if reqDesc != "" {
		changes["description"] = reqDesc
	}
	if reqCategory != "" {
		changes["category"] = reqCategory
	}
	if reqPriority != "" {
		changes["priority"] = reqPriority
	}
	if due, err := parseRFC3339("due", reqDueDate); err != nil {
		return err
	} else if due != nil {
		changes["due_date"] = due
	}
	if len(changes) > 0 {
		body["proposed_changes"] = changes
	}

	if ext, err := parseRFC3339("extend-to", reqExtendTo); err != nil {
		return err
	} else if ext != nil {
		body["requested_extension"] = ext
	}

	resp, err := apiPost("/tasks/"+args[0]+"/requests", body)
	if err != nil {
		return err
	}

	var result map[string]interface{}
	if err := json.Unmarshal(resp, &result); err != nil {
		return err
	}
	fmt.Printf("Opened request: %s\n", result["id"])
	fmt.Printf("Respond by:     %s\n", result["expires_at"])
	return nil
}

func runRequestList(cmd *cobra.Command, args []string) error {
	url := "/requests"
	sep := "?"
	if filterStatus != "" {
		url += sep + "status=" + filterStatus
		sep = "&"
	}
	if filterOrigin != "" {
		url += sep + "origin=" + filterOrigin
	}

	resp, err := apiGet(url)
	if err != nil {
		return err
	}

	var requests []map[string]interface{}
	if err := json.Unmarshal(resp, &requests); err != nil {
		return err
	}

	if len(requests) == 0 {
		fmt.Println("No requests found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTASK\tTYPE\tORIGIN\tSTATUS\tSLA")
	for _, req := range requests {
		slaLabel := ""
		if sla, ok := req["sla"].(map[string]interface{}); ok {
			level := sla["level"].(string)
			if ns, ok := sla["remaining_ns"].(float64); ok {
				remaining := time.Duration(ns).Round(time.Minute)
				slaLabel = fmt.Sprintf("%s (%s)", level, remaining)
			} else {
				slaLabel = level
			}
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			truncateID(req["id"].(string)),
			truncateID(req["task_id"].(string)),
			req["request_type"],
			req["origin"],
			req["effective_status"],
			slaLabel,
		)
	}
	w.Flush()
	return nil
}

func runRequestShow(cmd *cobra.Command, args []string) error {
	resp, err := apiGet("/requests/" + args[0])
	if err != nil {
		return err
	}

	var req map[string]interface{}
	if err := json.Unmarshal(resp, &req); err != nil {
		return err
	}

	fmt.Printf("ID:        %s\n", req["id"])
	fmt.Printf("Task:      %s\n", req["task_id"])
	fmt.Printf("Type:      %s (%s)\n", req["request_type"], req["origin"])
	fmt.Printf("Status:    %s\n", req["effective_status"])
	fmt.Printf("Reason:    %s\n", req["reason"])
	if v, ok := req["impact_note"].(string); ok && v != "" {
		fmt.Printf("Impact:    %s\n", v)
	}
	fmt.Printf("Requested: %s\n", req["requested_at"])
	if v, ok := req["expires_at"].(string); ok && v != "" {
		fmt.Printf("Respond by: %s\n", v)
	}
	if v, ok := req["employee_viewed_at"].(string); ok && v != "" {
		fmt.Printf("Viewed:    %s\n", v)
	}

	msgResp, err := apiGet("/requests/" + args[0] + "/messages")
	if err != nil {
		return err
	}
	var msgs []map[string]interface{}
	if err := json.Unmarshal(msgResp, &msgs); err != nil {
		return err
	}
	if len(msgs) > 0 {
		fmt.Println("\nDiscussion:")
		for _, m := range msgs {
			fmt.Printf("  [%s] %s\n", m["sender_role"], m["text"])
		}
	}
	return nil
}

func runRequestRespond(cmd *cobra.Command, args []string) error {
	body := map[string]string{
		"decision": args[1],
		"note":     reqNote,
	}
	if _, err := apiPost("/requests/"+args[0]+"/respond", body); err != nil {
		return err
	}
	fmt.Printf("Request %s %s\n", args[0], args[1])
	return nil
}

func runRequestApprove(cmd *cobra.Command, args []string) error {
	body := map[string]string{"admin_note": reqNote}
	if _, err := apiPost("/requests/"+args[0]+"/approve", body); err != nil {
		return err
	}
	fmt.Printf("Request %s approved\n", args[0])
	return nil
}

func runRequestReject(cmd *cobra.Command, args []string) error {
	body := map[string]string{"reason": reqNote}
	if _, err := apiPost("/requests/"+args[0]+"/reject", body); err != nil {
		return err
	}
	fmt.Printf("Request %s rejected\n", args[0])
	return nil
}

func runRequestExecute(cmd *cobra.Command, args []string) error {
	body := map[string]string{"admin_note": reqNote}
	resp, err := apiPost("/requests/"+args[0]+"/execute", body)
	if err != nil {
		return err
	}

	var result struct {
		Task map[string]interface{} `json:"task"`
	}
	if err := json.Unmarshal(resp, &result); err != nil {
		return err
	}
	fmt.Printf("Request %s executed\n", args[0])
	if result.Task != nil {
		fmt.Printf("Task %s now %s\n", truncateID(result.Task["id"].(string)), result.Task["status"])
	}
	return nil
}

func runRequestMsg(cmd *cobra.Command, args []string) error {
	body := map[string]string{"text": args[1]}
	if _, err := apiPost("/requests/"+args[0]+"/messages", body); err != nil {
		return err
	}
	fmt.Println("Message posted")
	return nil
}
