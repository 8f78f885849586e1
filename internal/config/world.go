package config

import (
	"fmt"
	"strconv"

	"questboard/internal/calendar"
	"questboard/internal/currency"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// World is the game-system configuration: the coins in circulation and the calendar.
type World struct {
	Currency *currency.Table
	Calendar *calendar.Definition
}

type denomination struct {
	Key        string `mapstructure:"key"`
	Label      string `mapstructure:"label"`
	Conversion string `mapstructure:"conversion"`
}

type worldFile struct {
	Currencies []denomination        `mapstructure:"currencies"`
	Calendar   *calendar.Definition `mapstructure:"calendar"`
}

// DefaultWorld returns the D&D 5e coins and the Havilon calendar.
func DefaultWorld() World {
	return World{Currency: currency.Default(), Calendar: calendar.Havilon()}
}

// LoadWorld reads a world file. Sections missing from the file keep their defaults and an
// empty path returns DefaultWorld.
func LoadWorld(path string) (World, error) {
	world := DefaultWorld()
	if path == "" {
		return world, nil
	}

	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return world, fmt.Errorf("reading world file %s: %w", path, err)
	}

	var file worldFile
	if err := v.Unmarshal(&file); err != nil {
		return world, fmt.Errorf("decoding world file %s: %w", path, err)
	}

	if len(file.Currencies) > 0 {
		denominations := make([]currency.Denomination, 0, len(file.Currencies))
		for _, d := range file.Currencies {
			conversion, err := decimal.NewFromString(d.Conversion)
			if err != nil {
				return world, fmt.Errorf("currency %q: conversion %s: %w", d.Key, strconv.Quote(d.Conversion), err)
			}
			denominations = append(denominations, currency.Denomination{Key: d.Key, Label: d.Label, Conversion: conversion})
		}
		table, err := currency.NewTable(denominations)
		if err != nil {
			return world, err
		}
		world.Currency = table
	}

	if file.Calendar != nil {
		if err := file.Calendar.Validate(); err != nil {
			return world, err
		}
		world.Calendar = file.Calendar
	}
	return world, nil
}
