package token

import "testing"

func TestMakePosLineCol(t *testing.T) {
	cases := []struct {
		line, col int
	}{
		{1, 1},
		{10, 3},
		{MaxLines, 1},
		{1, MaxCols},
	}
	for _, c := range cases {
		p := MakePos(c.line, c.col)
		l, col := p.LineCol()
		if l != c.line || col != c.col {
			t.Errorf("MakePos(%d,%d).LineCol() = (%d,%d), want (%d,%d)", c.line, c.col, l, col, c.line, c.col)
		}
	}
}

func TestPosUnknown(t *testing.T) {
	if !Pos(0).Unknown() {
		t.Errorf("zero Pos should be Unknown")
	}
	p := MakePos(1, 1)
	if p.Unknown() {
		t.Errorf("MakePos(1,1) should not be Unknown")
	}
}
