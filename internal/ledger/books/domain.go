package books

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/parishbooks/parishbooks/internal/ledger/accounts"
)

// PostedLine is one posted journal line joined to its entry header and
// account, ordered by entry date, entry number, then line number. It is the
// single input shape every book is projected from.
type PostedLine struct {
	EntryID     int64
	EntryNo     int64
	EntryDate   time.Time
	Memo        string
	ReferenceNo string
	LineNo      int
	AccountID   int64
	AccountCode string
	AccountName string
	AccountType accounts.AccountType
	NormalSide  accounts.NormalSide
	IsCash      bool
	Description string
	Debit       decimal.Decimal
	Credit      decimal.Decimal
}

// JournalRow is one general journal line in presentation order.
type JournalRow struct {
	Date        time.Time       `json:"date"`
	EntryNo     int64           `json:"entry_no"`
	Reference   string          `json:"reference"`
	AccountCode string          `json:"account_code"`
	AccountName string          `json:"account_name"`
	Description string          `json:"description"`
	Debit       decimal.Decimal `json:"debit"`
	Credit      decimal.Decimal `json:"credit"`
}

// LedgerRow is one general ledger movement with the balance after it.
type LedgerRow struct {
	Date        time.Time       `json:"date"`
	EntryNo     int64           `json:"entry_no"`
	Reference   string          `json:"reference"`
	Description string          `json:"description"`
	Debit       decimal.Decimal `json:"debit"`
	Credit      decimal.Decimal `json:"credit"`
	Balance     decimal.Decimal `json:"balance"`
}

// AccountLedger is one account's section of the general ledger.
type AccountLedger struct {
	AccountID     int64               `json:"account_id"`
	AccountCode   string              `json:"account_code"`
	AccountName   string              `json:"account_name"`
	NormalSide    accounts.NormalSide `json:"normal_side"`
	Rows          []LedgerRow         `json:"rows"`
	EndingBalance decimal.Decimal     `json:"ending_balance"`
}

// CashBookRow is one cash receipts or disbursements book line: the cash
// movement of one entry against one cash account, with the offsetting
// accounts summarized as text.
type CashBookRow struct {
	Date           time.Time       `json:"date"`
	EntryNo        int64           `json:"entry_no"`
	Reference      string          `json:"reference"`
	CashAccount    string          `json:"cash_account"`
	Amount         decimal.Decimal `json:"amount"`
	OffsetAccounts string          `json:"offset_accounts"`
}

var amountPrinter = message.NewPrinter(language.English)

// reference falls back to the entry number when no business reference was
// recorded.
func reference(line PostedLine) string {
	if line.ReferenceNo != "" {
		return line.ReferenceNo
	}
	return strconv.FormatInt(line.EntryNo, 10)
}

func description(line PostedLine) string {
	if line.Description != "" {
		return line.Description
	}
	return line.Memo
}

// BuildGeneralJournal projects posted lines into the general journal,
// preserving input order.
func BuildGeneralJournal(lines []PostedLine) []JournalRow {
	out := make([]JournalRow, 0, len(lines))
	for _, line := range lines {
		out = append(out, JournalRow{
			Date:        line.EntryDate,
			EntryNo:     line.EntryNo,
			Reference:   reference(line),
			AccountCode: line.AccountCode,
			AccountName: line.AccountName,
			Description: description(line),
			Debit:       line.Debit,
			Credit:      line.Credit,
		})
	}
	return out
}

// BuildGeneralLedger groups posted lines per account and computes a running
// balance in the account's normal side: debit-normal accounts grow with
// debits, credit-normal accounts grow with credits. Accounts appear in
// ascending code order.
func BuildGeneralLedger(lines []PostedLine) []AccountLedger {
	byAccount := map[int64]*AccountLedger{}
	var order []int64
	for _, line := range lines {
		ledger, ok := byAccount[line.AccountID]
		if !ok {
			ledger = &AccountLedger{
				AccountID:     line.AccountID,
				AccountCode:   line.AccountCode,
				AccountName:   line.AccountName,
				NormalSide:    line.NormalSide,
				EndingBalance: decimal.Zero,
			}
			byAccount[line.AccountID] = ledger
			order = append(order, line.AccountID)
		}
		delta := line.Debit.Sub(line.Credit)
		if line.NormalSide == accounts.NormalSideCredit {
			delta = line.Credit.Sub(line.Debit)
		}
		ledger.EndingBalance = ledger.EndingBalance.Add(delta)
		ledger.Rows = append(ledger.Rows, LedgerRow{
			Date:        line.EntryDate,
			EntryNo:     line.EntryNo,
			Reference:   reference(line),
			Description: description(line),
			Debit:       line.Debit,
			Credit:      line.Credit,
			Balance:     ledger.EndingBalance,
		})
	}
	out := make([]AccountLedger, 0, len(order))
	for _, id := range order {
		out = append(out, *byAccount[id])
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AccountCode < out[j].AccountCode })
	return out
}

// BuildCashReceipts projects entries with at least one debit to a
// cash-flagged account, one row per cash account per entry. The offsetting
// credit lines are rendered as "Name 1,234.00" pairs.
func BuildCashReceipts(lines []PostedLine) []CashBookRow {
	return buildCashBook(lines, true)
}

// BuildCashDisbursements is the mirror: entries crediting a cash-flagged
// account, with the offsetting debit lines summarized.
func BuildCashDisbursements(lines []PostedLine) []CashBookRow {
	return buildCashBook(lines, false)
}

func buildCashBook(lines []PostedLine, receipts bool) []CashBookRow {
	var out []CashBookRow
	for start := 0; start < len(lines); {
		end := start
		for end < len(lines) && lines[end].EntryID == lines[start].EntryID {
			end++
		}
		out = append(out, cashRowsForEntry(lines[start:end], receipts)...)
		start = end
	}
	return out
}

func cashRowsForEntry(entry []PostedLine, receipts bool) []CashBookRow {
	amounts := map[int64]decimal.Decimal{}
	names := map[int64]string{}
	var cashOrder []int64
	var offsets []string
	for _, line := range entry {
		cashAmount, offsetAmount := line.Debit, line.Credit
		if !receipts {
			cashAmount, offsetAmount = line.Credit, line.Debit
		}
		if line.IsCash && cashAmount.IsPositive() {
			if _, ok := amounts[line.AccountID]; !ok {
				cashOrder = append(cashOrder, line.AccountID)
				amounts[line.AccountID] = decimal.Zero
				names[line.AccountID] = line.AccountCode
			}
			amounts[line.AccountID] = amounts[line.AccountID].Add(cashAmount)
			continue
		}
		if offsetAmount.IsPositive() {
			offsets = append(offsets, amountPrinter.Sprintf("%s %.2f", line.AccountName, offsetAmount.InexactFloat64()))
		}
	}
	out := make([]CashBookRow, 0, len(cashOrder))
	for _, id := range cashOrder {
		out = append(out, CashBookRow{
			Date:           entry[0].EntryDate,
			EntryNo:        entry[0].EntryNo,
			Reference:      reference(entry[0]),
			CashAccount:    names[id],
			Amount:         amounts[id],
			OffsetAccounts: strings.Join(offsets, "; "),
		})
	}
	return out
}
