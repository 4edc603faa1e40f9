package extract

import "fmt"

const extractionPrompt = `
You are an enterprise email understanding agent.

Extract ONLY structured information.
Return VALID JSON.
If information is missing, use null.

Email:
"""%s"""

Fields:
- sender_role (role of the sender in the context of the email: manager, client, supplier, team_member)
- project_title
- meeting_topic (what will be discussed in the meeting)
- relation_type (meeting_client, collaboration, supplier_offer)
- meeting_date (YYYY-MM-DD)
- meeting_time (HH:MM, 24h)
- duration_hours (number of hours)
- urgent (true/false)
- tasks_requested (array)
- documents_to_prepare (array)
- confirmation_status (confirmed / pending)
`

func buildPrompt(emailText string) string {
	return fmt.Sprintf(extractionPrompt, emailText)
}
