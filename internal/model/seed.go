package model

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// SeedCharacteristic is a characteristic definition used to bootstrap a
// catalog.
type SeedCharacteristic struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	ValueHint   string `yaml:"value_hint"`
	Display     string `yaml:"display,omitempty"`
}

var baseCharacteristics = []SeedCharacteristic{
	{Name: "type", Description: "Тип карты", ValueHint: "Например: Mastercard, Visa, МИР", Display: "Тип карты"},
	{Name: "currency", Description: "Валюта", ValueHint: "Например: BYN, USD, EUR", Display: "Валюта"},
	{Name: "validity", Description: "Срок действия", ValueHint: "Например: 3 года, 5 лет", Display: "Срок действия"},
	{Name: "maintenance_cost", Description: "Обслуживание", ValueHint: "Например: 3 BYN/мес, бесплатно", Display: "Обслуживание"},
	{Name: "free_conditions", Description: "Бесплатно при", ValueHint: "Например: при обороте от 600 BYN", Display: "Бесплатно при"},
	{Name: "sms_notification", Description: "СМС уведомления", ValueHint: "Например: 4.5 BYN/мес, бесплатно", Display: "СМС уведомления"},
	{Name: "atm_limit_own", Description: "Лимит ATM своего", ValueHint: "Например: 1000 BYN, без ограничений", Display: "Лимит ATM своего"},
	{Name: "atm_limit_other", Description: "Лимит ATM других", ValueHint: "Например: 500 BYN, 3.5 %", Display: "Лимит ATM других"},
	{Name: "loyalty_program", Description: "Программа лояльности", ValueHint: "Например: кэшбэк 3 %, бонусы", Display: "Программа лояльности"},
	{Name: "interest_rate", Description: "% на остаток", ValueHint: "Например: 0.01 %, 3 % годовых", Display: "% на остаток"},
	{Name: "additional", Description: "Дополнительно", ValueHint: "Особенности, льготы, требования", Display: "Дополнительно"},
}

// BaseCharacteristics returns the built-in card characteristics.
func BaseCharacteristics() []SeedCharacteristic {
	out := make([]SeedCharacteristic, len(baseCharacteristics))
	copy(out, baseCharacteristics)
	return out
}

// DisplayName returns the report label for a characteristic key, or the key
// itself when no label is known.
func DisplayName(key string) string {
	for _, c := range baseCharacteristics {
		if c.Name == key {
			return c.Display
		}
	}
	return key
}

// LoadCharacteristics reads seed definitions from a YAML file of the form
//
//	characteristics:
//	  - name: cashback
//	    description: Кэшбэк
//	    value_hint: "Например: 1 %"
func LoadCharacteristics(path string) ([]SeedCharacteristic, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "seed: read file")
	}

	var doc struct {
		Characteristics []SeedCharacteristic `yaml:"characteristics"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, eris.Wrap(err, "seed: parse yaml")
	}

	for i, c := range doc.Characteristics {
		if c.Name == "" {
			return nil, eris.Errorf("seed: characteristic %d has no name", i)
		}
	}
	return doc.Characteristics, nil
}
