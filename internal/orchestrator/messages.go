package orchestrator

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/fintrack/wa-gateway/internal/model"
)

const (
	msgNotRegistered = "❌ Nomor WhatsApp Anda belum terdaftar.\n\nSilakan daftarkan nomor ini melalui menu Pengaturan di aplikasi terlebih dahulu."

	msgSessionExpired = "🔑 Sesi Anda telah berakhir.\n\nSilakan login ulang melalui aplikasi untuk melanjutkan pencatatan transaksi."

	msgNoWallet = "⚠️ Anda belum memiliki wallet.\n\nBuat wallet terlebih dahulu di aplikasi, lalu kirim ulang transaksi Anda."

	msgNotUnderstood = "🤔 Pesan tidak dikenali sebagai transaksi.\n\nContoh format yang bisa dipakai:\n• Beli makan siang 50rb\n• Gaji bulanan 5jt\n• Bayar listrik 200.000\n• Transfer dari bank 1jt untuk belanja"

	msgExtractFailed = "⚠️ Terjadi gangguan saat memproses pesan Anda. Silakan coba lagi beberapa saat lagi."

	msgInvalidChoice = "❌ Pilihan tidak dikenali."
)

// walletPrompt renders the numbered wallet list the user picks from.
func walletPrompt(options []model.WalletOption) string {
	var b strings.Builder
	b.WriteString("💰 Pilih wallet untuk transaksi ini:\n\n")
	for i, opt := range options {
		b.WriteString(fmt.Sprintf("%d. %s", i+1, opt.Name))
		if opt.IsDefault {
			b.WriteString(" (Default)")
		}
		b.WriteString("\n")
	}
	b.WriteString("\nBalas dengan nomor (1, 2, 3...) atau nama wallet.")
	return b.String()
}

// confirmation renders the success message for a recorded transaction.
func confirmation(draft model.TransactionDraft, walletName string) string {
	var b strings.Builder
	b.WriteString("✅ Transaksi berhasil dibuat!\n\n")
	b.WriteString(fmt.Sprintf("📝 %s\n", draft.Description))
	b.WriteString(fmt.Sprintf("💵 %s\n", formatRupiah(draft.Amount)))
	if draft.Kind == model.KindIncome {
		b.WriteString("📈 Pemasukan\n")
	} else {
		b.WriteString("📉 Pengeluaran\n")
	}
	if draft.Category != "" {
		b.WriteString(fmt.Sprintf("🏷️ %s\n", draft.Category))
	}
	if walletName != "" {
		b.WriteString(fmt.Sprintf("💰 %s\n", walletName))
	}
	b.WriteString(fmt.Sprintf("📅 %s", draft.OccurredOn))
	return b.String()
}

func failure(err error) string {
	return fmt.Sprintf("❌ Gagal membuat transaksi: %s", err)
}

// formatRupiah renders an amount as Rupiah with dot thousand separators,
// e.g. Rp1.500.000.
func formatRupiah(amount decimal.Decimal) string {
	whole := amount.Truncate(0)
	digits := whole.Abs().String()

	var b strings.Builder
	if amount.IsNegative() {
		b.WriteString("-")
	}
	b.WriteString("Rp")

	for i, r := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteRune('.')
		}
		b.WriteRune(r)
	}

	frac := amount.Sub(whole).Abs()
	if !frac.IsZero() {
		cents := frac.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
		b.WriteString(fmt.Sprintf(",%02d", cents))
	}
	return b.String()
}
