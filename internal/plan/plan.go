// Package plan models the structured project payload stored in
// projects.data and the ordered change operations a gated update applies
// to it.
package plan

import (
	"encoding/json"
	"fmt"
)

type Plan struct {
	Phases []Phase `json:"phases"`
	Memory string  `json:"memory,omitempty"`
}

type Phase struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Tasks []Task `json:"tasks"`
}

type Task struct {
	ID        string          `json:"id"`
	Title     string          `json:"title"`
	Status    string          `json:"status,omitempty"`
	Question  string          `json:"question,omitempty"`
	Answer    string          `json:"answer,omitempty"`
	Checklist []ChecklistItem `json:"checklist,omitempty"`
	Subtasks  []Task          `json:"subtasks,omitempty"`
}

type ChecklistItem struct {
	Label string `json:"label"`
	Done  bool   `json:"done"`
}

// Change is one operation inside a gated update. Type selects the
// operation; the remaining fields carry its arguments.
type Change struct {
	Type    string `json:"type"`
	TaskID  string `json:"taskId,omitempty"`
	Status  string `json:"status,omitempty"`
	Answer  string `json:"answer,omitempty"`
	Item    int    `json:"item,omitempty"`
	Content string `json:"content,omitempty"`
}

const (
	ChangeAnswerQuestion   = "answer_question"
	ChangeUpdateTaskStatus = "update_task_status"
	ChangeToggleChecklist  = "toggle_checklist"
	ChangeUpdateMemory     = "update_memory"
)

// UnknownChangeError rejects a change type the protocol does not define.
type UnknownChangeError struct {
	Type string
}

func (e *UnknownChangeError) Error() string {
	return fmt.Sprintf("unknown change type %q", e.Type)
}

// Apply runs the changes in order over the stored payload and returns the
// new payload. A change that names a task nobody has is a silent no-op; an
// unknown change type fails the whole batch.
func Apply(raw json.RawMessage, changes []Change) (json.RawMessage, error) {
	var p Plan
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("decode plan payload: %w", err)
		}
	}

	index := indexTasks(&p)
	for _, change := range changes {
		if err := apply(&p, index, change); err != nil {
			return nil, err
		}
	}

	updated, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode plan payload: %w", err)
	}
	return updated, nil
}

func apply(p *Plan, index map[string]*Task, change Change) error {
	switch change.Type {
	case ChangeAnswerQuestion:
		if task, ok := index[change.TaskID]; ok {
			task.Answer = change.Answer
		}
	case ChangeUpdateTaskStatus:
		if task, ok := index[change.TaskID]; ok {
			task.Status = change.Status
		}
	case ChangeToggleChecklist:
		if task, ok := index[change.TaskID]; ok {
			if change.Item >= 0 && change.Item < len(task.Checklist) {
				task.Checklist[change.Item].Done = !task.Checklist[change.Item].Done
			}
		}
	case ChangeUpdateMemory:
		p.Memory = change.Content
	default:
		return &UnknownChangeError{Type: change.Type}
	}
	return nil
}

// indexTasks flattens the phase/task/subtask nesting into one id lookup,
// built once per update instead of re-walking the tree per change.
func indexTasks(p *Plan) map[string]*Task {
	index := make(map[string]*Task)
	var walk func(tasks []Task)
	walk = func(tasks []Task) {
		for i := range tasks {
			task := &tasks[i]
			index[task.ID] = task
			walk(task.Subtasks)
		}
	}
	for i := range p.Phases {
		walk(p.Phases[i].Tasks)
	}
	return index
}
