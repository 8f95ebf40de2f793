package address

import (
	"fmt"
	"strings"

	"github.com/cdnilsen/eliot-web/internal/util"
)

// Book is one entry of the static book table.
type Book struct {
	Name  string
	Code  string
	Order int
}

var books = [...]Book{
	{"Genesis", "001", 1}, {"Exodus", "002", 2}, {"Leviticus", "003", 3},
	{"Numbers", "004", 4}, {"Deuteronomy", "005", 5}, {"Joshua", "006", 6},
	{"Judges", "007", 7}, {"Ruth", "008", 8}, {"1 Samuel", "009", 9},
	{"2 Samuel", "010", 10}, {"1 Kings", "011", 11}, {"2 Kings", "012", 12},
	{"1 Chronicles", "013", 13}, {"2 Chronicles", "014", 14}, {"Ezra", "015", 15},
	{"Nehemiah", "016", 16}, {"Esther", "017", 17}, {"Job", "018", 18},
	{"Psalms (prose)", "019", 19}, {"Proverbs", "020", 20}, {"Ecclesiastes", "021", 21},
	{"Song of Songs", "022", 22}, {"Isaiah", "023", 23}, {"Jeremiah", "024", 24},
	{"Lamentations", "025", 25}, {"Ezekiel", "026", 26}, {"Daniel", "027", 27},
	{"Hosea", "028", 28}, {"Joel", "029", 29}, {"Amos", "030", 30},
	{"Obadiah", "031", 31}, {"Jonah", "032", 32}, {"Micah", "033", 33},
	{"Nahum", "034", 34}, {"Habakkuk", "035", 35}, {"Zephaniah", "036", 36},
	{"Haggai", "037", 37}, {"Zechariah", "038", 38}, {"Malachi", "039", 39},
	{"Matthew", "040", 40}, {"Mark", "041", 41}, {"Luke", "042", 42},
	{"John", "043", 43}, {"Acts", "044", 44}, {"Romans", "045", 45},
	{"1 Corinthians", "046", 46}, {"2 Corinthians", "047", 47}, {"Galatians", "048", 48},
	{"Ephesians", "049", 49}, {"Philippians", "050", 50}, {"Colossians", "051", 51},
	{"1 Thessalonians", "052", 52}, {"2 Thessalonians", "053", 53}, {"1 Timothy", "054", 54},
	{"2 Timothy", "055", 55}, {"Titus", "056", 56}, {"Philemon", "057", 57},
	{"Hebrews", "058", 58}, {"James", "059", 59}, {"1 Peter", "060", 60},
	{"2 Peter", "061", 61}, {"1 John", "062", 62}, {"2 John", "063", 63},
	{"3 John", "064", 64}, {"Jude", "065", 65}, {"Revelation", "066", 66},
}

// bookAliases maps alternative spellings seen in file names to table names.
var bookAliases = map[string]string{
	"psalms":          "Psalms (prose)",
	"song of solomon": "Song of Songs",
}

var (
	booksByName = func() map[string]Book {
		m := make(map[string]Book, len(books))
		for _, b := range books {
			m[strings.ToLower(b.Name)] = b
		}
		return m
	}()
	booksByCode = func() map[string]Book {
		m := make(map[string]Book, len(books))
		for _, b := range books {
			m[b.Code] = b
		}
		return m
	}()
)

// Books returns the book table in canonical order.
func Books() []Book {
	out := make([]Book, len(books))
	copy(out, books[:])
	return out
}

// LookupBook finds a book by name, case-insensitively.
func LookupBook(name string) (Book, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if alias, ok := bookAliases[key]; ok {
		key = strings.ToLower(alias)
	}
	if b, ok := booksByName[key]; ok {
		return b, nil
	}
	return Book{}, fmt.Errorf("%w: %q", util.ErrUnknownBook, name)
}

func BookByCode(code string) (Book, error) {
	if b, ok := booksByCode[code]; ok {
		return b, nil
	}
	return Book{}, fmt.Errorf("%w: code %q", util.ErrUnknownBook, code)
}
