package classify

import "regexp"

// Category is a campaign taxonomy key, e.g. "winback_12m".
type Category string

const (
	Birthday    Category = "birthday"
	OTP         Category = "otp"
	Warranty    Category = "warranty"
	CashVoucher Category = "cash_voucher"
	FMVVoucher  Category = "fmv_voucher"
	NPOVoucher  Category = "npo_voucher"
	EyeCheck    Category = "eye_check"
	Receipt     Category = "receipt"
	Winback6M   Category = "winback_6m"
	Winback9M   Category = "winback_9m"
	Winback12M  Category = "winback_12m"
	Winback18M  Category = "winback_18m"
	Referral    Category = "referral"
	Welcome     Category = "welcome"
	Advertising Category = "advertising"
	Other       Category = "other"
)

// Voucher code shapes. They run on the original-case content.
var (
	birthdayVoucher = regexp.MustCompile(`(?i)\b(SN\d+[A-Z]*)`)
	cashVoucher     = regexp.MustCompile(`\b(VC\d+K[A-Z0-9]*)`)
	fmvVoucher      = regexp.MustCompile(`\b(FMV\d+[A-Z0-9]*)`)
	npoVoucher      = regexp.MustCompile(`\b(NPO[A-Z]*\d[A-Z0-9]*)`)
	genericVoucher  = regexp.MustCompile(`\b([A-Z]{2,}\d[A-Z0-9]{3,})\b`)
)

// DefaultRules returns the ordered rule list. The first match wins, so
// structural rules (JSON templates, OTP phrases, coded vouchers) sit before
// the winback rules, and those before the keyword rules that would
// otherwise claim any message mentioning a discount.
func DefaultRules() []Rule {
	return []Rule{
		{
			Name:     "birthday_template",
			Category: Birthday,
			Match:    All(Prefix(`[{"Key"`), RawContains("voucher_code"), RawContains("SN")),
			Voucher:  birthdayVoucher,
		},
		{
			Name:     "otp",
			Category: OTP,
			Match:    Contains("mã xác thực", "xác thực của bạn"),
		},
		{
			Name:     "warranty_activation",
			Category: Warranty,
			Match:    Contains("kích hoạt bảo hành", "xác nhận bảo hành"),
		},
		{
			Name:     "cash_voucher",
			Category: CashVoucher,
			Match:    Any(Contains("cashvoucher"), Raw(`VC\d+K.*CPM`)),
			Voucher:  cashVoucher,
		},
		{
			Name:     "fmv_voucher",
			Category: FMVVoucher,
			Match:    Raw(`FMV\d+`),
			Voucher:  fmvVoucher,
		},
		{
			Name:     "npo_voucher",
			Category: NPOVoucher,
			Match:    All(RawContains("NPO"), Contains("voucher", "%")),
			Voucher:  npoVoucher,
		},
		{
			Name:     "eye_check_reminder",
			Category: EyeCheck,
			Match:    All(Prefix(`["`), Raw(`\d{2}/\d{2}/\d{4}`)),
		},
		{
			Name:     "receipt",
			Category: Receipt,
			Match:    All(Raw(`SO\d+-\d+/\d+|BH\d+-\d+/\d+`), Contains("cảm ơn")),
		},
		{
			Name:     "winback_6m",
			Category: Winback6M,
			Match:    Pattern(`\b6\s*(thang|months?)\b`),
			Voucher:  genericVoucher,
		},
		{
			Name:     "winback_9m",
			Category: Winback9M,
			Match:    Pattern(`\b9\s*(thang|months?)\b`),
			Voucher:  genericVoucher,
		},
		{
			Name:     "winback_12m",
			Category: Winback12M,
			Match:    Pattern(`\b12\s*(thang|months?)\b|\b1\s*nam\b`),
			Voucher:  genericVoucher,
		},
		{
			Name:     "winback_18m",
			Category: Winback18M,
			Match:    Pattern(`\b18\s*(thang|months?)\b`),
			Voucher:  genericVoucher,
		},
		{
			Name:     "birthday_keyword",
			Category: Birthday,
			Match:    Pattern(`sinh\s*nhat|birthday|\bsn\d+`),
			Voucher:  birthdayVoucher,
		},
		{
			Name:     "referral",
			Category: Referral,
			Match:    Pattern(`gioi\s*thieu|referral|ban\s*be`),
			Voucher:  genericVoucher,
		},
		{
			Name:     "welcome",
			Category: Welcome,
			Match:    Pattern(`chao\s*mung|welcome|khach\s*hang\s*moi`),
			Voucher:  genericVoucher,
		},
		{
			Name:     "eye_check_keyword",
			Category: EyeCheck,
			Match:    Pattern(`kham\s*mat|kiem\s*tra\s*mat|eye\s*check|lich\s*hen`),
		},
		{
			Name:     "warranty_keyword",
			Category: Warranty,
			Match:    Pattern(`bao\s*hanh|warranty`),
		},
		{
			Name:     "advertising",
			Category: Advertising,
			Match: Any(
				Contains("quảng cáo", "khuyến mãi", "ưu đãi", "promotion"),
				Pattern(`giam.*\d+%|giam\s*gia|\bsale\b|\d+%\s*off`),
				All(RawContains("OEB"), Contains("%")),
			),
			Voucher: genericVoucher,
		},
	}
}

// fallbackRule fires when no ordered rule matched: any percentage, discount
// word or the word voucher still reads as a promotion.
var fallbackRule = Rule{
	Name:     "fallback_promo",
	Category: Advertising,
	Match:    Pattern(`\d+%|giam|voucher`),
}
