// Package prompt renders the instructions sent to the model.
package prompt

import (
	"fmt"
	"strings"

	"github.com/sells-group/cardscope/internal/model"
)

// Mode selects the content kind the extraction prompt describes.
type Mode string

const (
	ModeHTML Mode = "html"
	ModeText Mode = "text"
)

// Field is one requested JSON key.
type Field struct {
	Key         string
	Description string
	Hint        string
}

// FieldsFrom converts characteristics to fields, preserving order.
func FieldsFrom(chars []model.Characteristic) []Field {
	fields := make([]Field, len(chars))
	for i, c := range chars {
		fields[i] = Field{Key: c.Name, Description: c.Description, Hint: c.ValueHint}
	}
	return fields
}

func (f Field) line() string {
	desc := strings.TrimSpace(f.Description)
	if desc == "" {
		desc = "найти значение"
	}
	if hint := strings.TrimSpace(f.Hint); hint != "" {
		return fmt.Sprintf("- %s: %s (пример: '%s')", f.Key, desc, hint)
	}
	return fmt.Sprintf("- %s: %s", f.Key, desc)
}

// Extraction builds the field extraction prompt for subject. Content is
// appended verbatim after every instruction.
func Extraction(subject string, fields []Field, content string, mode Mode) string {
	lines := make([]string, len(fields))
	for i, f := range fields {
		lines[i] = f.line()
	}

	format := "{}"
	if len(fields) > 0 {
		format = fmt.Sprintf(`{"%s":...}`, fields[0].Key)
	}

	var b strings.Builder
	if mode == ModeText {
		fmt.Fprintf(&b, "Извлеки данные для %q из текста. Найди ВСЕ значения.\n\n", subject)
		b.WriteString("ИНСТРУКЦИИ:\n")
		b.WriteString("1. Ищи во всём тексте, включая таблицы и списки\n")
	} else {
		fmt.Fprintf(&b, "Извлеки данные из HTML для %q. ВСЕ поля ищи везде.\n\n", subject)
		b.WriteString("ИНСТРУКЦИИ:\n")
		b.WriteString("1. Ищи в <table>, <tr>, <td>, <ul>, <li>, <div>, <span>, <p>\n")
	}
	b.WriteString("2. Комбинируй информацию если она разделена на части\n")
	b.WriteString("3. Если значение не найдено - напиши null (только null, не \"не найдено\")\n")
	b.WriteString("4. Ответ - ТОЛЬКО JSON в одну строку\n\n")

	b.WriteString("ПОЛЯ:\n")
	b.WriteString(strings.Join(lines, "\n"))
	b.WriteString("\n\n")

	b.WriteString("Формат ответа JSON:\n")
	b.WriteString(format)
	b.WriteString("\n\n")

	if mode == ModeText {
		b.WriteString("ТЕКСТ:\n")
	} else {
		b.WriteString("HTML:\n")
	}
	b.WriteString(content)
	return b.String()
}

// Identify asks for the bank and product named on a page.
func Identify(text string) string {
	return `Проанализируй текст страницы и определи:

1. название банка (кратко: просто "Сбер", "Альфа Банк", "Беларусбанк" и т.п.);
2. название продукта (карты, кредита или депозита).

Формат ответа - JSON одной строкой:
{"bank": "НАЗВАНИЕ_БАНКА", "product": "НАЗВАНИЕ_ПРОДУКТА"}

ТЕКСТ:
` + text
}

// Describe asks for a description and value hint for a new characteristic.
func Describe(name string) string {
	return fmt.Sprintf(`Сформулируй краткое понятное описание для характеристики финансового продукта с названием: %q.
Также добавь маленький текст-подсказку о типе значения этой характеристики (например: "в BYN", "%% годовых", "без ограничений" и т.п.).

Представь ответ в JSON-форме одной строкой:
{"description": "Описание характеристики...", "value_hint": "Подсказка к формату значения"}`, name)
}
