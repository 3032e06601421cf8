package tooling

import (
	"errors"
	"testing"
)

func TestExtractCommand(t *testing.T) {
	tests := []struct {
		name    string
		output  string
		want    string
		wantErr bool
	}{
		{name: "plain command line", output: "npm install left-pad", want: "npm install left-pad"},
		{name: "list-prefixed command", output: "Sure, here's what to run:\n- git clone https://example.com/repo.git", want: "git clone https://example.com/repo.git"},
		{name: "numbered list item", output: "1. docker build -t app .", want: "docker build -t app ."},
		{name: "command on its own indented line", output: "Here's the plan:\n\n    pip install requests\n\nThen continue.", want: "pip install requests"},
		{name: "command only mid-sentence is not extracted", output: "You should run pip install requests to continue.", wantErr: true},
		{name: "no candidate command", output: "I don't think we need to run anything here.", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractCommand(tt.output)
			if tt.wantErr {
				if !errors.Is(err, ErrNoCommand) {
					t.Fatalf("ExtractCommand() err = %v, want ErrNoCommand", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ExtractCommand() unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("ExtractCommand() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSanitize(t *testing.T) {
	tests := []struct {
		name       string
		command    string
		wantTokens []string
		wantReason string
	}{
		{name: "valid npm command", command: "npm install left-pad", wantTokens: []string{"npm", "install", "left-pad"}},
		{name: "quoted argument", command: `git commit -m "fix bug"`, wantTokens: []string{"git", "commit", "-m", "fix bug"}},
		{name: "empty command rejected", command: "", wantReason: "empty command"},
		{name: "shell metacharacter rejected", command: "npm install && rm -rf /", wantReason: "shell metacharacters present"},
		{name: "sudo rejected", command: "sudo npm install", wantReason: "sudo is not permitted"},
		{name: "rm -rf rejected", command: "rm -rf /tmp/x", wantReason: "rm -rf is not permitted"},
		{name: "non-allowlisted binary rejected", command: "curl https://example.com", wantReason: "argv[0] is not allowlisted"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tokens, err := Sanitize(tt.command)
			if tt.wantReason != "" {
				var rejected ErrRejected
				if !errors.As(err, &rejected) {
					t.Fatalf("Sanitize() err = %v, want ErrRejected", err)
				}
				if rejected.Reason != tt.wantReason {
					t.Errorf("Sanitize() reason = %q, want %q", rejected.Reason, tt.wantReason)
				}
				return
			}
			if err != nil {
				t.Fatalf("Sanitize() unexpected error: %v", err)
			}
			if len(tokens) != len(tt.wantTokens) {
				t.Fatalf("Sanitize() tokens = %v, want %v", tokens, tt.wantTokens)
			}
			for i := range tokens {
				if tokens[i] != tt.wantTokens[i] {
					t.Errorf("Sanitize() tokens[%d] = %q, want %q", i, tokens[i], tt.wantTokens[i])
				}
			}
		})
	}
}

func TestTokenizeUnterminatedQuote(t *testing.T) {
	if _, err := tokenize(`git commit -m "unterminated`); err == nil {
		t.Fatal("tokenize() expected error for unterminated quote")
	}
}

func TestBoundedBuffer(t *testing.T) {
	var buf boundedBuffer
	big := make([]byte, captureLimit+1024)
	for i := range big {
		big[i] = 'x'
	}
	n, err := buf.Write(big)
	if err != nil {
		t.Fatalf("Write() unexpected error: %v", err)
	}
	if n != len(big) {
		t.Errorf("Write() returned %d, want %d (writer must report full length even when discarding)", n, len(big))
	}
	if buf.buf.Len() != captureLimit {
		t.Errorf("boundedBuffer retained %d bytes, want %d", buf.buf.Len(), captureLimit)
	}
}
