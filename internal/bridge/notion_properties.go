package bridge

// Property names of the Notion tasks database.
const (
	propName             = "Name"
	propTodoistID        = "Todoist ID"
	propStatus           = "Status"
	propPriority         = "Priority"
	propDueDate          = "Due Date"
	propDescription      = "Description"
	propTodoistProjectID = "Todoist Project ID"
)

// Status select values.
const (
	statusNotStarted = "Not Started"
	statusCompleted  = "Completed"
)

// priorityName maps the Todoist numeric priority (1 is the API default)
// onto the select options the database uses.
func priorityName(priority int) string {
	switch priority {
	case 2:
		return "Low"
	case 3:
		return "Medium"
	case 4:
		return "High"
	default:
		return "Normal"
	}
}

// taskProperties builds the full Notion property payload for a task
// snapshot. Empty optional fields are omitted rather than written blank.
func taskProperties(task TaskSnapshot) map[string]any {
	status := statusNotStarted
	if task.Checked {
		status = statusCompleted
	}
	props := map[string]any{
		propName:      map[string]any{"title": []any{richText(task.Content)}},
		propTodoistID: map[string]any{"rich_text": []any{richText(task.ID)}},
		propStatus:    selectValue(status),
		propPriority:  selectValue(priorityName(task.Priority)),
	}
	if task.Description != "" {
		props[propDescription] = map[string]any{"rich_text": []any{richText(task.Description)}}
	}
	if task.ProjectID != "" {
		props[propTodoistProjectID] = map[string]any{"rich_text": []any{richText(task.ProjectID)}}
	}
	if task.Due != nil && task.Due.Date != "" {
		props[propDueDate] = map[string]any{"date": map[string]any{"start": task.Due.Date}}
	}
	return props
}

// completionProperties flips only the Status select.
func completionProperties(completed bool) map[string]any {
	status := statusNotStarted
	if completed {
		status = statusCompleted
	}
	return map[string]any{propStatus: selectValue(status)}
}

func richText(text string) map[string]any {
	return map[string]any{"text": map[string]any{"content": text}}
}

func selectValue(name string) map[string]any {
	return map[string]any{"select": map[string]any{"name": name}}
}
