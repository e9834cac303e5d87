package sanitiser

// Built-in pattern catalogue. Rank decides the order patterns run in; each
// later pattern sees the output of the earlier ones.
const (
	// dd-mm-yyyy and variations
	dateExpr1 = `\d{2}[- /.]\d{2}[- /.]\d{0,4}`
	// 1 January 22 and variations
	dateExpr2 = `(?i)(\d{1,2}[^\w]{0,2}(january|february|march|april|may|june|july|august|september|october|november|december)` +
		`([- /.]{0,2}(\d{4}|\d{2})){0,1})(?=\D|$)(?![^<]*>)`
	// 1-mar-2022 and variations
	dateExpr3 = `(?i)(\d{1,2}[^\w]{0,2}(jan|feb|mar|apr|may|jun|jul|aug|sep|oct|nov|dec)` +
		`([- /.]{0,2}(\d{4}|\d{2})){0,1})(?=\D|$)(?![^<]*>)`
	emailExpr = `(([\w-]+(?:\.[\w-]+)*)@((?:[\w-]+\.)*\w[\w-]{0,66})\.` +
		`([a-z]{2,6}(?:\.[a-z]{2})?))(?![^<]*>)`
	urlExpr = `(?i)\b((?:[a-z][\w-]+:(?:\/{1,3}|[a-z0-9%])|www\d{0,3}[.]|[a-z0-9.\-]+[.][a-z]{2,4}\/)` +
		`(?:[^\s()<>]+|\(([^\s()<>]+|(\([^\s()<>]+\)))*\))+(?:\(([^\s()<>]` +
		`+|(\([^\s()<>]+\)))*\)|[^\s` + "`" + `!()\[\]{};:'".,<>?«»“”‘’]))`
	// C:\ or \\server\share through to a file extension; allows spaces
	filePathExpr = `(?:[a-zA-Z]:|\\\\[\w\.]+\\[\w.$]+).*[\w](?=[.])[.\w]*`
	// C:\ or \\server\share folders; stops at a space in the last segment
	folderPathExpr = `(?:[a-zA-Z]:|\\\\[\w\.]+\\[\w.$]+)\\(?:[\s\w-]+\\)*([\w.-])*`
	// any word containing a digit, full stops included
	numberExpr = `[.\w]*\d[.\w]*`
)

type builtin struct {
	name, group, placeholder string
	rank                     float64
	expr                     string
}

var builtins = []builtin{
	{"date1", "date", "<DATE>", 1, dateExpr1},
	{"date2", "date", "<DATE>", 2, dateExpr2},
	{"date3", "date", "<DATE>", 3, dateExpr3},
	{"email", "email", "<EMAIL>", 4, emailExpr},
	{"url", "url", "<URL>", 5, urlExpr},
	{"file_path", "path", "<PATH>", 6, filePathExpr},
	{"folder_path", "path", "<PATH>", 7, folderPathExpr},
	{"number", "number", "<NUM>", 8, numberExpr},
}
