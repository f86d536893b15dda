package queue

import (
	"strings"
	"testing"
)

func TestSubjectNamesOneSubjectPerTask(t *testing.T) {
	seen := make(map[string]bool)
	for _, name := range TaskNames {
		subj := Subject(name)
		if !strings.HasPrefix(subj, "pipeline.jobs.") {
			t.Errorf("Subject(%q) = %q, want pipeline.jobs. prefix", name, subj)
		}
		if seen[subj] {
			t.Errorf("duplicate subject %q for task %q", subj, name)
		}
		seen[subj] = true
	}
}

func TestQueueGroupNamesOneGroupPerTask(t *testing.T) {
	seen := make(map[string]bool)
	for _, name := range TaskNames {
		group := QueueGroup(name)
		if !strings.HasSuffix(group, "-workers") {
			t.Errorf("QueueGroup(%q) = %q, want -workers suffix", name, group)
		}
		if seen[group] {
			t.Errorf("duplicate queue group %q for task %q", group, name)
		}
		seen[group] = true
	}
}

func TestTaskNamesMatchSpecOrder(t *testing.T) {
	want := []string{"translation", "description", "allergen", "ingredient", "search_image"}
	if len(TaskNames) != len(want) {
		t.Fatalf("got %d task names, want %d", len(TaskNames), len(want))
	}
	for i, name := range want {
		if TaskNames[i] != name {
			t.Errorf("TaskNames[%d] = %q, want %q", i, TaskNames[i], name)
		}
	}
}
