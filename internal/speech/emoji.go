package speech

type spokenAs struct {
	en string
	vi string
}

// emojiNames maps pictographs to what should be read aloud instead.
var emojiNames = map[string]spokenAs{
	"💙":  {"blue heart", "trái tim xanh dương"},
	"❤️": {"red heart", "trái tim đỏ"},
	"💚":  {"green heart", "trái tim xanh lá"},
	"💛":  {"yellow heart", "trái tim vàng"},
	"💜":  {"purple heart", "trái tim tím"},
	"🖤":  {"black heart", "trái tim đen"},
	"🤍":  {"white heart", "trái tim trắng"},
	"🤎":  {"brown heart", "trái tim nâu"},
	"🧡":  {"orange heart", "trái tim cam"},
	"😊":  {"smiling face", "mặt cười"},
	"😀":  {"grinning face", "mặt cười toe"},
	"😃":  {"smiling face with open mouth", "mặt cười rộng"},
	"😄":  {"smiling face with smiling eyes", "mặt cười vui vẻ"},
	"😁":  {"beaming face", "mặt cười tươi"},
	"😅":  {"grinning face with sweat", "mặt cười ngượng"},
	"😂":  {"laughing", "cười lăn"},
	"🤣":  {"rolling on the floor laughing", "cười ngất"},
	"😭":  {"crying", "khóc"},
	"😢":  {"crying face", "mặt khóc"},
	"😔":  {"sad", "buồn"},
	"😞":  {"disappointed", "thất vọng"},
	"😟":  {"worried", "lo lắng"},
	"😥":  {"sad but relieved", "buồn nhẹ nhõm"},
	"👋":  {"waving hand", "vẫy tay"},
	"👍":  {"thumbs up", "thích"},
	"👎":  {"thumbs down", "không thích"},
	"🙏":  {"folded hands", "cảm ơn"},
	"👏":  {"clapping hands", "vỗ tay"},
	"🎉":  {"party popper", "pháo hoa"},
	"🎊":  {"confetti ball", "bóng confetti"},
	"✨":  {"sparkles", "lấp lánh"},
	"⭐":  {"star", "ngôi sao"},
	"🌟":  {"glowing star", "ngôi sao sáng"},
	"💫":  {"dizzy", "chóng mặt"},
	"🔥":  {"fire", "lửa"},
	"💧":  {"droplet", "giọt nước"},
	"💦":  {"sweat droplets", "giọt mồ hôi"},
	"☀️": {"sun", "mặt trời"},
	"🌙":  {"crescent moon", "trăng khuyết"},
	"⚡":  {"lightning", "tia chớp"},
	"🌈":  {"rainbow", "cầu vồng"},
	"🎵":  {"musical note", "nốt nhạc"},
	"🎶":  {"musical notes", "nốt nhạc"},
	"🔔":  {"bell", "chuông"},
	"🔕":  {"bell with slash", "tắt chuông"},
	"📱":  {"mobile phone", "điện thoại"},
	"📞":  {"telephone", "điện thoại"},
	"☎️": {"telephone", "điện thoại bàn"},
	"💬":  {"speech balloon", "bong bóng chat"},
	"💭":  {"thought balloon", "bong bóng suy nghĩ"},
	"🗨️": {"speech bubble", "bong bóng nói"},
	"🏠":  {"house", "ngôi nhà"},
	"🏡":  {"house with garden", "nhà có vườn"},
	"🎂":  {"birthday cake", "bánh sinh nhật"},
	"🍰":  {"cake", "bánh ngọt"},
	"☕":  {"coffee", "cà phê"},
	"🍵":  {"tea", "trà"},
	"🎓":  {"graduation cap", "mũ tốt nghiệp"},
	"📚":  {"books", "sách"},
	"📖":  {"open book", "sách mở"},
	"✏️": {"pencil", "bút chì"},
	"✒️": {"pen", "bút mực"},
	"🆘":  {"SOS button", "nút SOS"},
	"🚨":  {"police car light", "đèn cảnh báo"},
	"⚠️": {"warning", "cảnh báo"},
	"🎙️": {"microphone", "micro"},
	"🎤":  {"microphone", "micro"},
	"🎧":  {"headphone", "tai nghe"},
	"🎨":  {"artist palette", "bảng màu"},
}

// pictographRanges are stripped when no spoken name is known.
var pictographRanges = [][2]rune{
	{0x1F600, 0x1F64F}, // emoticons
	{0x1F300, 0x1F5FF}, // misc symbols and pictographs
	{0x1F680, 0x1F6FF}, // transport and map
	{0x1F1E0, 0x1F1FF}, // flags
	{0x2600, 0x26FF},
	{0x2700, 0x27BF},
	{0x1F900, 0x1F9FF},
	{0x1FA00, 0x1FA6F},
	{0x1FA70, 0x1FAFF},
	{0xFE0F, 0xFE0F}, // variation selector-16
	{0x200D, 0x200D}, // zero width joiner
}
