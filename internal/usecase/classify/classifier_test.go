package classify

import "testing"

func TestClassifyCommands(t *testing.T) {
	cases := []struct {
		text    string
		command CommandName
		ordinal int
	}{
		{"#ping", CmdPing, 0},
		{"#tugas", CmdList, 0},
		{"#todo", CmdList, 0},
		{"#today", CmdToday, 0},
		{"#help", CmdHelp, 0},
		{"#done 3", CmdDone, 3},
		{"#selesai 1", CmdDone, 1},
		{"#undo", CmdUndo, 0},
		{"#undone", CmdUndo, 0},
		{"#undone 1", CmdUndo, 0},
		{"#batal", CmdUndo, 0},
		{"#expand 2", CmdExpand, 2},
		{"#tugas 2", CmdExpand, 2},
		{"#5", CmdExpand, 5},
		{"  #PING  ", CmdPing, 0},
		{"#tugs", CmdUnknown, 0},
		{"#done", CmdUnknown, 0},
		{"#done abc", CmdUnknown, 0},
		{"#", CmdUnknown, 0},
	}
	for _, tc := range cases {
		got := Classify(tc.text, false)
		if got.Kind != KindCommand {
			t.Fatalf("%q: ожидали команду, получили %s", tc.text, got.Kind)
		}
		if got.Command != tc.command {
			t.Fatalf("%q: ожидали %s, получили %s", tc.text, tc.command, got.Command)
		}
		if got.Ordinal != tc.ordinal {
			t.Fatalf("%q: ожидали порядковый %d, получили %d", tc.text, tc.ordinal, got.Ordinal)
		}
	}
}

func TestClassifyCandidateAndIgnorable(t *testing.T) {
	if got := Classify("Besok kumpul LKP 14 pemrog", false); got.Kind != KindCandidate {
		t.Fatalf("обычный текст должен быть кандидатом, получили %s", got.Kind)
	}
	if got := Classify("", true); got.Kind != KindCandidate {
		t.Fatalf("изображение без текста должно быть кандидатом, получили %s", got.Kind)
	}
	if got := Classify("   ", false); got.Kind != KindIgnorable {
		t.Fatalf("пустой текст должен игнорироваться, получили %s", got.Kind)
	}
}

func TestSuggest(t *testing.T) {
	if got := Suggest("tugs"); got != "tugas" {
		t.Fatalf("ожидали подсказку tugas, получили %q", got)
	}
	if got := Suggest("pnig"); got != "ping" {
		t.Fatalf("ожидали подсказку ping, получили %q", got)
	}
	if got := Suggest("zzzzzz"); got != "" {
		t.Fatalf("не ожидали подсказку, получили %q", got)
	}
}
