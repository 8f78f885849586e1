// Package calendar implements date arithmetic over custom world calendars and the
// calendar event collection with its recurrence matcher.
//
// Dates are {Day, Year} pairs where Day is the zero-indexed day of the year. All range
// checks convert dates into a linear day count so month lengths and leap years are honoured.
package calendar

import (
	"errors"
	"fmt"

	"questboard/internal/models"
)

var (
	// ErrInvalidDefinition indicates a calendar definition that cannot be used.
	ErrInvalidDefinition = errors.New("calendar: invalid definition")
	// ErrInvalidDate indicates a date outside of its year.
	ErrInvalidDate = errors.New("calendar: invalid date")
)

// Month is one month of a calendar. LeapDays replaces Days in leap years when set.
type Month struct {
	Name         string `mapstructure:"name" json:"name"`
	Abbreviation string `mapstructure:"abbreviation" json:"abbreviation"`
	Days         int    `mapstructure:"days" json:"days"`
	LeapDays     int    `mapstructure:"leap_days" json:"leapDays,omitempty"`
}

// Weekday is one day of a calendar's week.
type Weekday struct {
	Name         string `mapstructure:"name" json:"name"`
	Abbreviation string `mapstructure:"abbreviation" json:"abbreviation"`
	RestDay      bool   `mapstructure:"rest_day" json:"restDay,omitempty"`
}

// LeapYear describes a regular leap cycle. An Interval of zero disables leap years.
type LeapYear struct {
	Start    int `mapstructure:"start" json:"start"`
	Interval int `mapstructure:"interval" json:"interval"`
}

// Definition is a world calendar.
type Definition struct {
	Name         string    `mapstructure:"name" json:"name"`
	Months       []Month   `mapstructure:"months" json:"months"`
	Weekdays     []Weekday `mapstructure:"weekdays" json:"weekdays"`
	LeapYear     LeapYear  `mapstructure:"leap_year" json:"leapYear"`
	FirstWeekday int       `mapstructure:"first_weekday" json:"firstWeekday"`

	// IsLeap overrides the LeapYear cycle when set.
	IsLeap func(year int) bool `mapstructure:"-" json:"-"`
}

// Components is a date broken down into month, day of month and weekday, all zero-indexed.
type Components struct {
	Year       int `json:"year"`
	Day        int `json:"day"`
	Month      int `json:"month"`
	DayOfMonth int `json:"dayOfMonth"`
	Weekday    int `json:"weekday"`
}

// Havilon returns the calendar of the New Age of Havilon: twelve months of 27 days followed
// by the single day of Tenebrae, a nine day week and no leap years.
func Havilon() *Definition {
	months := []Month{
		{Name: "Sationem's Rise", Abbreviation: "Sationem1", Days: 27},
		{Name: "Sationem", Abbreviation: "Sationem2", Days: 27},
		{Name: "Sationem's End", Abbreviation: "Sationem3", Days: 27},
		{Name: "Suntide's Rise", Abbreviation: "Suntide1", Days: 27},
		{Name: "Suntide", Abbreviation: "Suntide2", Days: 27},
		{Name: "Suntide's End", Abbreviation: "Suntide3", Days: 27},
		{Name: "Maturam's Rise", Abbreviation: "Maturam1", Days: 27},
		{Name: "Maturam", Abbreviation: "Maturam2", Days: 27},
		{Name: "Maturam's End", Abbreviation: "Maturam3", Days: 27},
		{Name: "Withertide's Rise", Abbreviation: "Withertide1", Days: 27},
		{Name: "Withertide", Abbreviation: "Withertide2", Days: 27},
		{Name: "Withertide's End", Abbreviation: "Withertide3", Days: 27},
		{Name: "Tenebrae", Abbreviation: "Tenebrae", Days: 1},
	}
	weekdays := []Weekday{
		{Name: "Ardere", Abbreviation: "Ard"},
		{Name: "Claudere", Abbreviation: "Claud"},
		{Name: "Canere", Abbreviation: "Can"},
		{Name: "Saltare", Abbreviation: "Salt"},
		{Name: "Congerere", Abbreviation: "Conger"},
		{Name: "Operiere", Abbreviation: "Oper"},
		{Name: "Glacies", Abbreviation: "Glac", RestDay: true},
		{Name: "Ventus", Abbreviation: "Vent", RestDay: true},
		{Name: "Lux", Abbreviation: "Lux", RestDay: true},
	}
	return &Definition{Name: "New Age of Havilon", Months: months, Weekdays: weekdays}
}

// Validate checks that the definition describes a usable calendar.
func (d *Definition) Validate() error {
	if len(d.Months) == 0 {
		return fmt.Errorf("%w: no months", ErrInvalidDefinition)
	}
	if len(d.Weekdays) == 0 {
		return fmt.Errorf("%w: no weekdays", ErrInvalidDefinition)
	}
	total := 0
	for _, m := range d.Months {
		if m.Days < 0 || m.LeapDays < 0 {
			return fmt.Errorf("%w: month %q has a negative length", ErrInvalidDefinition, m.Name)
		}
		total += m.Days
	}
	if total == 0 {
		return fmt.Errorf("%w: a year has no days", ErrInvalidDefinition)
	}
	if d.LeapYear.Interval < 0 {
		return fmt.Errorf("%w: negative leap interval", ErrInvalidDefinition)
	}
	if d.FirstWeekday < 0 || d.FirstWeekday >= len(d.Weekdays) {
		return fmt.Errorf("%w: first weekday %d out of range", ErrInvalidDefinition, d.FirstWeekday)
	}
	return nil
}

// IsLeapYear reports whether year is a leap year.
func (d *Definition) IsLeapYear(year int) bool {
	if d.IsLeap != nil {
		return d.IsLeap(year)
	}
	if d.LeapYear.Interval <= 0 {
		return false
	}
	return floorMod(year-d.LeapYear.Start, d.LeapYear.Interval) == 0
}

// DaysInMonth returns the length of a zero-indexed month in the given year.
func (d *Definition) DaysInMonth(year, month int) int {
	m := d.Months[month]
	if m.LeapDays > 0 && d.IsLeapYear(year) {
		return m.LeapDays
	}
	return m.Days
}

// DaysInYear returns the length of the given year.
func (d *Definition) DaysInYear(year int) int {
	if d.IsLeapYear(year) {
		return d.commonYear() + d.leapExtra()
	}
	return d.commonYear()
}

// DayOfYear converts a zero-indexed month and day of month into the day of the year.
func (d *Definition) DayOfYear(year, month, dayOfMonth int) int {
	day := dayOfMonth
	for i := 0; i < month; i++ {
		day += d.DaysInMonth(year, i)
	}
	return day
}

// ValidDate reports whether the date names an existing day.
func (d *Definition) ValidDate(date models.EventDate) error {
	if date.Year < 0 || date.Day < 0 || date.Day >= d.DaysInYear(date.Year) {
		return fmt.Errorf("%w: day %d of year %d", ErrInvalidDate, date.Day, date.Year)
	}
	return nil
}

// Linear returns the number of days between day 0 of year 0 and date. Days past the end of
// the year roll into the following years.
func (d *Definition) Linear(date models.EventDate) int {
	if date.Year >= 0 {
		return d.daysBetweenYears(0, date.Year) + date.Day
	}
	return date.Day - d.daysBetweenYears(date.Year, 0)
}

// FromLinear is the inverse of Linear.
func (d *Definition) FromLinear(n int) models.EventDate {
	year := floorDiv(n, d.commonYear()+d.leapExtra())
	for d.Linear(models.EventDate{Year: year}) > n {
		year--
	}
	for d.Linear(models.EventDate{Year: year + 1}) <= n {
		year++
	}
	return models.EventDate{Day: n - d.Linear(models.EventDate{Year: year}), Year: year}
}

// Add moves date by days, which may be negative.
func (d *Definition) Add(date models.EventDate, days int) models.EventDate {
	return d.FromLinear(d.Linear(date) + days)
}

// Between reports whether date lies within [start, end], both inclusive.
func (d *Definition) Between(date, start, end models.EventDate) bool {
	n := d.Linear(date)
	return d.Linear(start) <= n && n <= d.Linear(end)
}

// Components breaks a date down into month, day of month and weekday.
func (d *Definition) Components(date models.EventDate) Components {
	norm := d.FromLinear(d.Linear(date))
	c := Components{Year: norm.Year, Day: norm.Day, DayOfMonth: norm.Day}
	for c.Month < len(d.Months)-1 {
		days := d.DaysInMonth(norm.Year, c.Month)
		if c.DayOfMonth < days {
			break
		}
		c.DayOfMonth -= days
		c.Month++
	}
	c.Weekday = floorMod(d.FirstWeekday+d.Linear(norm), len(d.Weekdays))
	return c
}

func (d *Definition) commonYear() int {
	total := 0
	for _, m := range d.Months {
		total += m.Days
	}
	return total
}

func (d *Definition) leapExtra() int {
	extra := 0
	for _, m := range d.Months {
		if m.LeapDays > 0 {
			extra += m.LeapDays - m.Days
		}
	}
	return extra
}

// daysBetweenYears returns the number of days in years [from, to).
func (d *Definition) daysBetweenYears(from, to int) int {
	if d.IsLeap != nil {
		total := 0
		for y := from; y < to; y++ {
			total += d.DaysInYear(y)
		}
		return total
	}
	total := (to - from) * d.commonYear()
	if i := d.LeapYear.Interval; i > 0 {
		leaps := floorDiv(to-1-d.LeapYear.Start, i) - floorDiv(from-1-d.LeapYear.Start, i)
		total += leaps * d.leapExtra()
	}
	return total
}

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

func floorMod(a, b int) int {
	return a - floorDiv(a, b)*b
}
