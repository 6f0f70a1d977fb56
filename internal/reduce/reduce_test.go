package reduce

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

const cardPage = `<!DOCTYPE html>
<html><head>
<meta charset="utf-8"><title>Visa Gold</title>
<link rel="stylesheet" href="/a.css"><style>body{color:red}</style>
<script>window.track = 1;</script>
</head><body>
<nav><a href="/">Главная</a></nav>
<!-- promo banner -->
<h1>Карта Visa Gold</h1>
<table><tr><td>Обслуживание</td><td>5 BYN в месяц</td></tr></table>
<form><button>Оформить</button></form>
<svg><circle r="4"/></svg>
<iframe src="https://maps.example"></iframe>
<noscript>Включите JavaScript</noscript>
<footer>© Банк</footer>
</body></html>`

func TestReduce_RemovesNoise(t *testing.T) {
	out := New().Reduce(cardPage)

	assert.Contains(t, out, "Карта Visa Gold")
	assert.Contains(t, out, "<td>5 BYN в месяц</td>")
	assert.Contains(t, out, "<button>Оформить</button>", "forms survive structural reduction")
	for _, gone := range []string{"<script", "<style", "<meta", "<link", "<svg", "<iframe", "<noscript", "<nav", "<footer", "promo banner"} {
		assert.NotContains(t, out, gone)
	}
}

func TestReduce_Truncates(t *testing.T) {
	r := &Reducer{HTMLLimit: 100}
	out := r.Reduce("<p>" + strings.Repeat("ж", 500) + "</p>")

	assert.Equal(t, 100, utf8.RuneCountInString(out))
	assert.True(t, utf8.ValidString(out))
}

func TestExtractText(t *testing.T) {
	out := New().ExtractText(cardPage)

	assert.Equal(t, "Visa Gold Карта Visa Gold Обслуживание 5 BYN в месяц", out)
}

func TestExtractText_CollapsesWhitespace(t *testing.T) {
	out := New().ExtractText("<div>  Лимит\n\n\t снятия </div><p>1000   BYN</p>")

	assert.Equal(t, "Лимит снятия 1000 BYN", out)
}

func TestExtractTextLimit(t *testing.T) {
	raw := "<p>" + strings.Repeat("слово ", 3000) + "</p>"

	assert.Equal(t, ClassifyTextLimit, utf8.RuneCountInString(New().ExtractTextLimit(raw, ClassifyTextLimit)))
	assert.Equal(t, 100, utf8.RuneCountInString((&Reducer{TextLimit: 100}).ExtractText(raw)))
}

func TestTooSmall_Boundary(t *testing.T) {
	assert.False(t, TooSmall(strings.Repeat("я", MinHTMLLength)))
	assert.True(t, TooSmall(strings.Repeat("я", MinHTMLLength-1)))
	assert.True(t, TooSmall(""))
}

func TestReduce_EmptyPageIsTooSmall(t *testing.T) {
	out := New().Reduce("<script>only()</script>")
	assert.True(t, TooSmall(out))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", Truncate("abc", 10))
	assert.Equal(t, "аб", Truncate("абв", 2))
	assert.Equal(t, "abc", Truncate("abc", 0))
}

func TestNilReducerUsesDefaults(t *testing.T) {
	var r *Reducer
	assert.Equal(t, DefaultHTMLLimit, r.htmlLimit())
	assert.Equal(t, DefaultTextLimit, r.textLimit())
}
