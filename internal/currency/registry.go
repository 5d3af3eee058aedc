package currency

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// BaseSymbol 是无法推断币种时使用的默认结算币。
const BaseSymbol = "cUSD"

// AlternateBaseSymbol 在目标币与来源币冲突时作为替代默认值。
const AlternateBaseSymbol = "cEUR"

// Descriptor 描述一种链上稳定币。表在进程启动时加载，之后只读。
type Descriptor struct {
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
	Address  string `json:"address"`
	Decimals uint8  `json:"decimals"`
	Currency string `json:"currency"`
	Country  string `json:"country"`
	Active   bool   `json:"active"`
}

// TokenAddress 返回描述符对应的链上地址。
func (d Descriptor) TokenAddress() common.Address {
	return common.HexToAddress(d.Address)
}

// Registry 提供币种描述符与国家/别名映射的只读查询。
type Registry struct {
	descriptors []Descriptor
	bySymbol    map[string]Descriptor
	aliases     []aliasEntry
	countries   []aliasEntry
}

// aliasEntry 的顺序即匹配优先级，先出现者先匹配。
type aliasEntry struct {
	keyword string
	symbol  string
}

// defaultDescriptors 对应 Celo 主网上的 Mento 稳定币，7 个启用，其余保留。
var defaultDescriptors = []Descriptor{
	{Symbol: "cUSD", Name: "Celo Dollar", Address: "0x765DE816845861e75A25fCA122bb6898B8B1282a", Decimals: 18, Currency: "USD", Country: "United States", Active: true},
	{Symbol: "cEUR", Name: "Celo Euro", Address: "0xD8763CBa276a3738E6DE85b4b3bF5FDed6D6cA73", Decimals: 18, Currency: "EUR", Country: "European Union", Active: true},
	{Symbol: "cREAL", Name: "Celo Brazilian Real", Address: "0xe8537a3d056DA446677B9E9d6c5dB704EaAb4787", Decimals: 18, Currency: "BRL", Country: "Brazil", Active: true},
	{Symbol: "cKES", Name: "Celo Kenyan Shilling", Address: "0x456a3D042C0DbD3db53D5489e98dFb038553B0d0", Decimals: 18, Currency: "KES", Country: "Kenya", Active: true},
	{Symbol: "PUSO", Name: "Philippine Peso", Address: "0x105d4A9306D2E55a71d2Eb95B81553AE1dC20d7B", Decimals: 18, Currency: "PHP", Country: "Philippines", Active: true},
	{Symbol: "cCOP", Name: "Celo Colombian Peso", Address: "0x8A567e2aE79CA692Bd748aB832081C45de4EF982", Decimals: 18, Currency: "COP", Country: "Colombia", Active: true},
	{Symbol: "eXOF", Name: "ECO CFA Franc", Address: "0x73F93dcc49cB8A239e2032663e9475dd5ef29A08", Decimals: 18, Currency: "XOF", Country: "West Africa", Active: true},
	{Symbol: "cNGN", Name: "Celo Nigerian Naira", Address: "0x0000000000000000000000000000000000000000", Decimals: 18, Currency: "NGN", Country: "Nigeria", Active: false},
	{Symbol: "cGHS", Name: "Celo Ghanaian Cedi", Address: "0x0000000000000000000000000000000000000000", Decimals: 18, Currency: "GHS", Country: "Ghana", Active: false},
	{Symbol: "cZAR", Name: "Celo South African Rand", Address: "0x0000000000000000000000000000000000000000", Decimals: 18, Currency: "ZAR", Country: "South Africa", Active: false},
	{Symbol: "cJPY", Name: "Celo Japanese Yen", Address: "0x0000000000000000000000000000000000000000", Decimals: 18, Currency: "JPY", Country: "Japan", Active: false},
	{Symbol: "cCHF", Name: "Celo Swiss Franc", Address: "0x0000000000000000000000000000000000000000", Decimals: 18, Currency: "CHF", Country: "Switzerland", Active: false},
	{Symbol: "cGBP", Name: "Celo British Pound", Address: "0x0000000000000000000000000000000000000000", Decimals: 18, Currency: "GBP", Country: "United Kingdom", Active: false},
	{Symbol: "cAUD", Name: "Celo Australian Dollar", Address: "0x0000000000000000000000000000000000000000", Decimals: 18, Currency: "AUD", Country: "Australia", Active: false},
	{Symbol: "cCAD", Name: "Celo Canadian Dollar", Address: "0x0000000000000000000000000000000000000000", Decimals: 18, Currency: "CAD", Country: "Canada", Active: false},
}

// currencyAliases 将货币代码/口语说法映射到币种符号。
// 顺序有意义：符号本身优先于货币名，避免「send 100 cEUR to Kenya」被国家表抢先。
var currencyAliases = []aliasEntry{
	{"cusd", "cUSD"}, {"ceur", "cEUR"}, {"creal", "cREAL"}, {"ckes", "cKES"},
	{"puso", "PUSO"}, {"ccop", "cCOP"}, {"exof", "eXOF"}, {"cngn", "cNGN"},
	{"cghs", "cGHS"}, {"czar", "cZAR"}, {"cjpy", "cJPY"}, {"cchf", "cCHF"},
	{"cgbp", "cGBP"}, {"caud", "cAUD"}, {"ccad", "cCAD"},
	{"euro", "cEUR"}, {"eur", "cEUR"},
	{"dollars", "cUSD"}, {"dollar", "cUSD"}, {"usd", "cUSD"},
	{"real", "cREAL"}, {"brl", "cREAL"},
	{"shilling", "cKES"}, {"kes", "cKES"},
	{"peso", "PUSO"}, {"php", "PUSO"},
	{"cfa", "eXOF"}, {"xof", "eXOF"},
	{"naira", "cNGN"}, {"ngn", "cNGN"},
	{"cedi", "cGHS"}, {"ghs", "cGHS"},
	{"rand", "cZAR"}, {"zar", "cZAR"},
	{"yen", "cJPY"}, {"jpy", "cJPY"},
	{"chf", "cCHF"},
	{"pound", "cGBP"}, {"gbp", "cGBP"},
	{"cop", "cCOP"},
	{"aud", "cAUD"}, {"cad", "cCAD"},
}

// countryAliases 将国家/地区说法映射到默认币种。顺序即优先级。
var countryAliases = []aliasEntry{
	{"united states", "cUSD"}, {"usa", "cUSD"}, {"america", "cUSD"},
	{"europe", "cEUR"}, {"germany", "cEUR"}, {"france", "cEUR"}, {"italy", "cEUR"}, {"spain", "cEUR"},
	{"brazil", "cREAL"}, {"brasil", "cREAL"},
	{"kenya", "cKES"},
	{"philippines", "PUSO"},
	{"colombia", "cCOP"},
	{"west africa", "eXOF"}, {"senegal", "eXOF"}, {"ivory coast", "eXOF"}, {"mali", "eXOF"},
	{"nigeria", "cNGN"},
	{"ghana", "cGHS"},
	{"south africa", "cZAR"},
	{"japan", "cJPY"},
	{"switzerland", "cCHF"},
	{"united kingdom", "cGBP"}, {"england", "cGBP"},
	{"australia", "cAUD"},
	{"canada", "cCAD"},
}

// NewRegistry 使用内置的币种表创建注册表。
func NewRegistry() *Registry {
	return newRegistry(defaultDescriptors)
}

// LoadRegistry 从 JSON 文件加载币种表，用于不重新编译就替换合约地址。
func LoadRegistry(path string) (*Registry, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("币种表文件路径不能为空")
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("解析币种表路径失败: %w", err)
	}

	file, err := os.Open(absPath)
	if err != nil {
		return nil, fmt.Errorf("读取币种表文件失败: %w", err)
	}
	defer file.Close()

	var entries []Descriptor
	if err := json.NewDecoder(file).Decode(&entries); err != nil {
		return nil, fmt.Errorf("解析币种表文件失败: %w", err)
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("币种表文件中没有任何条目")
	}
	return newRegistry(entries), nil
}

func newRegistry(descriptors []Descriptor) *Registry {
	bySymbol := make(map[string]Descriptor, len(descriptors))
	for _, d := range descriptors {
		bySymbol[d.Symbol] = d
	}
	return &Registry{
		descriptors: descriptors,
		bySymbol:    bySymbol,
		aliases:     currencyAliases,
		countries:   countryAliases,
	}
}

// BySymbol 返回指定符号的描述符。
func (r *Registry) BySymbol(symbol string) (Descriptor, bool) {
	d, ok := r.bySymbol[symbol]
	return d, ok
}

// ByAddress 按链上地址查找描述符。
func (r *Registry) ByAddress(address common.Address) (Descriptor, bool) {
	for _, d := range r.descriptors {
		if d.TokenAddress() == address {
			return d, true
		}
	}
	return Descriptor{}, false
}

// Active 返回所有启用的币种，保持表内顺序。
func (r *Registry) Active() []Descriptor {
	results := make([]Descriptor, 0, len(r.descriptors))
	for _, d := range r.descriptors {
		if d.Active {
			results = append(results, d)
		}
	}
	return results
}

// IsActive 判断符号是否对应一个启用的币种。
func (r *Registry) IsActive(symbol string) bool {
	d, ok := r.bySymbol[symbol]
	return ok && d.Active
}

// MatchCurrency 在小写文本中按固定优先级扫描货币别名。
func (r *Registry) MatchCurrency(lowerText string) (string, bool) {
	for _, entry := range r.aliases {
		if strings.Contains(lowerText, entry.keyword) {
			return entry.symbol, true
		}
	}
	return "", false
}

// MatchCountry 在小写文本中按固定优先级扫描国家/地区名。
func (r *Registry) MatchCountry(lowerText string) (string, bool) {
	for _, entry := range r.countries {
		if strings.Contains(lowerText, entry.keyword) {
			return entry.symbol, true
		}
	}
	return "", false
}

// AlternateFor 返回与 symbol 不同的默认币，用于避免产生同币种转换。
func (r *Registry) AlternateFor(symbol string) string {
	if symbol == BaseSymbol {
		return AlternateBaseSymbol
	}
	return BaseSymbol
}
