// Package report renders batch reports for operators: the fault report
// tables, cycle-time statistics over run history, and spreadsheet exports.
package report
