package sms

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestClientSendSuccess(t *testing.T) {
	var gotPath, gotAPIKey, gotAccept string
	var gotForm map[string]string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAPIKey = r.Header.Get("apiKey")
		gotAccept = r.Header.Get("Accept")
		if err := r.ParseForm(); err != nil {
			t.Errorf("ParseForm() error = %v", err)
		}
		gotForm = map[string]string{
			"username": r.PostFormValue("username"),
			"to":       r.PostFormValue("to"),
			"message":  r.PostFormValue("message"),
			"from":     r.PostFormValue("from"),
		}
		fmt.Fprint(w, `{"SMSMessageData":{"Message":"Sent to 1/1","Recipients":[{"statusCode":101,"status":"Success"}]}}`)
	}))
	defer srv.Close()

	c := NewClient(Options{
		Username: "mamashield",
		APIKey:   "at-key",
		BaseURL:  srv.URL,
		SenderID: "MAMASHIELD",
	})

	if err := c.Send(context.Background(), "+254700000001", "hello mama"); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if gotPath != "/version1/messaging" {
		t.Fatalf("path = %q, want /version1/messaging", gotPath)
	}
	if gotAPIKey != "at-key" || gotAccept != "application/json" {
		t.Fatalf("headers apiKey=%q accept=%q", gotAPIKey, gotAccept)
	}
	want := map[string]string{
		"username": "mamashield",
		"to":       "+254700000001",
		"message":  "hello mama",
		"from":     "MAMASHIELD",
	}
	for k, v := range want {
		if gotForm[k] != v {
			t.Fatalf("form[%q] = %q, want %q", k, gotForm[k], v)
		}
	}
}

func TestClientSendOmitsEmptySenderID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("ParseForm() error = %v", err)
		}
		if _, ok := r.PostForm["from"]; ok {
			t.Errorf("from field sent despite empty sender ID")
		}
		fmt.Fprint(w, `{"SMSMessageData":{"Recipients":[{"statusCode":101,"status":"Success"}]}}`)
	}))
	defer srv.Close()

	c := NewClient(Options{Username: "u", APIKey: "k", BaseURL: srv.URL})
	if err := c.Send(context.Background(), "+254700000001", "hi"); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
}

func TestClientSendRejectedRecipient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"SMSMessageData":{"Recipients":[{"statusCode":403,"status":"InvalidPhoneNumber"}]}}`)
	}))
	defer srv.Close()

	c := NewClient(Options{Username: "u", APIKey: "k", BaseURL: srv.URL})
	if err := c.Send(context.Background(), "12", "hi"); err == nil {
		t.Fatalf("Send() error = nil, want rejected-recipient error")
	}
}

func TestClientSendGatewayError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewClient(Options{Username: "u", APIKey: "bad", BaseURL: srv.URL})
	if err := c.Send(context.Background(), "+254700000001", "hi"); err == nil {
		t.Fatalf("Send() error = nil, want gateway error")
	}
}

func TestClientSendEmptyRecipients(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"SMSMessageData":{"Recipients":[]}}`)
	}))
	defer srv.Close()

	c := NewClient(Options{Username: "u", APIKey: "k", BaseURL: srv.URL})
	if err := c.Send(context.Background(), "+254700000001", "hi"); err == nil {
		t.Fatalf("Send() error = nil, want empty-recipient error")
	}
}

func TestMockSenderRecords(t *testing.T) {
	m := NewMockSender()
	if err := m.Send(context.Background(), "+254700000001", "first"); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	sent := m.Sent()
	if len(sent) != 1 || sent[0].Text != "first" {
		t.Fatalf("Sent() = %+v", sent)
	}
}
