// Galvanic - Distributed Test Orchestration Substrate
// Copyright 2026 Henry C. (hclerval)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/hclerval/galvanic

package validation

import (
	"strings"
	"sync"
	"testing"
)

type broadcastRequest struct {
	Type   string `validate:"required,min=1,max=128"`
	Source string `validate:"required,componentid"`
}

type registrationProbe struct {
	Component string `validate:"required,componentid"`
	Version   string `validate:"omitempty,versiondate"`
}

type boundsProbe struct {
	Limit  int `validate:"min=1,max=1000"`
	Offset int `validate:"min=0"`
}

func TestGetValidator_Singleton(t *testing.T) {
	v1 := GetValidator()
	v2 := GetValidator()

	if v1 == nil {
		t.Fatal("GetValidator() returned nil")
	}
	if v1 != v2 {
		t.Error("GetValidator() returned different instances")
	}
}

func TestGetValidator_Concurrent(t *testing.T) {
	var wg sync.WaitGroup
	instances := make([]interface{}, 50)

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			instances[idx] = GetValidator()
		}(i)
	}
	wg.Wait()

	for i := 1; i < len(instances); i++ {
		if instances[i] != instances[0] {
			t.Fatalf("instance %d differs from instance 0", i)
		}
	}
}

func TestValidateStruct_Valid(t *testing.T) {
	tests := []struct {
		name string
		s    interface{}
	}{
		{
			name: "broadcast request",
			s:    &broadcastRequest{Type: "status.update", Source: "doctor-main"},
		},
		{
			name: "broadcast sentinel as source for component field",
			s:    &registrationProbe{Component: "broadcast"},
		},
		{
			name: "registration with version",
			s:    &registrationProbe{Component: "igor-main", Version: "2026-08-01"},
		},
		{
			name: "version with suffix",
			s:    &registrationProbe{Component: "frank-7001", Version: "2026-08-01-hotfix2"},
		},
		{
			name: "bounds in range",
			s:    &boundsProbe{Limit: 100, Offset: 0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := ValidateStruct(tt.s); err != nil {
				t.Errorf("ValidateStruct() error: %v", err)
			}
		})
	}
}

func TestValidateStruct_Invalid(t *testing.T) {
	tests := []struct {
		name      string
		s         interface{}
		wantField string
		wantTag   string
	}{
		{
			name:      "missing type",
			s:         &broadcastRequest{Source: "doctor-main"},
			wantField: "Type",
			wantTag:   "required",
		},
		{
			name:      "uppercase component id",
			s:         &broadcastRequest{Type: "x", Source: "Doctor-Main"},
			wantField: "Source",
			wantTag:   "componentid",
		},
		{
			name:      "component id with spaces",
			s:         &registrationProbe{Component: "igor main"},
			wantField: "Component",
			wantTag:   "componentid",
		},
		{
			name:      "component id leading hyphen",
			s:         &registrationProbe{Component: "-igor"},
			wantField: "Component",
			wantTag:   "componentid",
		},
		{
			name:      "version not a date",
			s:         &registrationProbe{Component: "igor-main", Version: "v1.2.3"},
			wantField: "Version",
			wantTag:   "versiondate",
		},
		{
			name:      "version month out of range",
			s:         &registrationProbe{Component: "igor-main", Version: "2026-13-01"},
			wantField: "Version",
			wantTag:   "versiondate",
		},
		{
			name:      "limit below minimum",
			s:         &boundsProbe{Limit: 0, Offset: 0},
			wantField: "Limit",
			wantTag:   "min",
		},
		{
			name:      "limit above maximum",
			s:         &boundsProbe{Limit: 5000, Offset: 0},
			wantField: "Limit",
			wantTag:   "max",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateStruct(tt.s)
			if err == nil {
				t.Fatal("ValidateStruct() = nil, want error")
			}

			found := false
			for _, fe := range err.Errors() {
				if fe.Field() == tt.wantField && fe.Tag() == tt.wantTag {
					found = true
					if fe.Error() == "" {
						t.Error("translated message is empty")
					}
				}
			}
			if !found {
				t.Errorf("no error for field %q tag %q in %v", tt.wantField, tt.wantTag, err)
			}
		})
	}
}

func TestToAPIError_SingleError(t *testing.T) {
	err := ValidateStruct(&broadcastRequest{Type: "x", Source: ""})
	if err == nil {
		t.Fatal("expected validation error")
	}

	apiErr := err.ToAPIError()
	if apiErr.Code != "VALIDATION_ERROR" {
		t.Errorf("Code = %q, want VALIDATION_ERROR", apiErr.Code)
	}
	if apiErr.Message == "" {
		t.Error("Message is empty")
	}
	if apiErr.Details["field"] != "Source" {
		t.Errorf("Details[field] = %v, want Source", apiErr.Details["field"])
	}
}

func TestToAPIError_MultipleErrors(t *testing.T) {
	err := ValidateStruct(&broadcastRequest{})
	if err == nil {
		t.Fatal("expected validation error")
	}
	if len(err.Errors()) < 2 {
		t.Fatalf("len(Errors()) = %d, want >= 2", len(err.Errors()))
	}

	apiErr := err.ToAPIError()
	if apiErr.Code != "VALIDATION_ERROR" {
		t.Errorf("Code = %q, want VALIDATION_ERROR", apiErr.Code)
	}
	if !strings.Contains(apiErr.Message, ";") {
		t.Errorf("Message %q should join multiple errors", apiErr.Message)
	}
	if _, ok := apiErr.Details["fields"]; !ok {
		t.Error("Details missing fields list")
	}
}

func TestTranslateError_Messages(t *testing.T) {
	tests := []struct {
		name string
		s    interface{}
		want string
	}{
		{
			name: "required message",
			s:    &broadcastRequest{Source: "doctor-main"},
			want: "Type is required",
		},
		{
			name: "componentid message",
			s:    &broadcastRequest{Type: "x", Source: "BAD ID"},
			want: "Source must be a valid component identifier",
		},
		{
			name: "versiondate message",
			s:    &registrationProbe{Component: "igor-main", Version: "nope"},
			want: "Version must start with an ISO date (YYYY-MM-DD)",
		},
		{
			name: "min number message",
			s:    &boundsProbe{Limit: 0},
			want: "Limit must be at least 1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateStruct(tt.s)
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Error() = %q, want substring %q", err.Error(), tt.want)
			}
		})
	}
}

func TestValidateStruct_ConcurrentUse(t *testing.T) {
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = ValidateStruct(&broadcastRequest{Type: "status.update", Source: "doctor-main"})
				_ = ValidateStruct(&broadcastRequest{})
			}
		}()
	}
	wg.Wait()
}

func BenchmarkValidateStruct_Valid(b *testing.B) {
	req := &broadcastRequest{Type: "status.update", Source: "doctor-main"}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		ValidateStruct(req)
	}
}

func BenchmarkValidateStruct_Invalid(b *testing.B) {
	req := &broadcastRequest{Type: "", Source: "BAD"}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		ValidateStruct(req)
	}
}
