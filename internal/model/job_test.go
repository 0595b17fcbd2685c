package model

import (
	"reflect"
	"testing"
)

func TestJobStatusCanTransition(t *testing.T) {
	cases := []struct {
		from, to JobStatus
		want     bool
	}{
		{JobQueued, JobRunning, true},
		{JobQueued, JobFailed, true},
		{JobQueued, JobSuccess, false},
		{JobRunning, JobSuccess, true},
		{JobRunning, JobFailed, true},
		{JobRunning, JobQueued, false},
		{JobSuccess, JobFailed, false},
		{JobFailed, JobRunning, false},
		{JobFailed, JobQueued, false},
	}
	for _, tc := range cases {
		if got := tc.from.CanTransition(tc.to); got != tc.want {
			t.Fatalf("CanTransition(%s -> %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestTransitionSources(t *testing.T) {
	cases := []struct {
		to   JobStatus
		want []JobStatus
	}{
		{JobRunning, []JobStatus{JobQueued}},
		{JobSuccess, []JobStatus{JobRunning}},
		{JobFailed, []JobStatus{JobQueued, JobRunning}},
		{JobQueued, nil},
	}
	for _, tc := range cases {
		if got := TransitionSources(tc.to); !reflect.DeepEqual(got, tc.want) {
			t.Fatalf("TransitionSources(%s) = %v, want %v", tc.to, got, tc.want)
		}
	}
}
