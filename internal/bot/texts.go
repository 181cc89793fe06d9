package bot

const (
	scopeMenu     = "menu"
	scopePick     = "pick"
	scopeRange    = "rng"
	scopeFav      = "fav"
	scopeSet      = "set"
	scopeHomework = "hw"
	scopeStatus   = "st"
)

const (
	textWelcome = "Привет! 👋\n" +
		"Я помогаю студентам: показываю расписание групп и преподавателей, " +
		"присылаю его по расписанию и храню домашку.\n\n" +
		"Выберите одну из опций ниже:"
	textUnavailable = "Источник временно недоступен. Попробуйте позже."
	textFailed      = "Произошла ошибка. Попробуйте ещё раз."
	textSearchFail  = "Произошла ошибка при поиске. Попробуйте ещё раз."
	textCancelled   = "Отменено. Используйте /start чтобы начать заново."
	textIdle        = "Используйте /start, чтобы открыть меню."
	textNoEntity    = "Сначала выберите группу или преподавателя: /start"
	textChooseRange = "Выберите период:"
	textAskDate     = "Введите дату в формате <b>ДД.ММ.ГГГГ</b>:"
	textBadDate     = "Неверный формат. Введите дату как ДД.ММ.ГГГГ"
	textNoSuchDate  = "Такой даты не существует. Попробуйте ещё раз."
	textSending     = "Отправляю по дням ниже ⬇️"
	textManyFound   = "Найдено несколько вариантов, выберите нужный:"
	textPickExpired = "Список устарел. Введите название ещё раз:"

	textSettings = "⚙️ <b>Меню настроек</b>\n\n" +
		"Здесь можно выбрать время уведомлений и день, расписание которого придёт.\n" +
		"Выберите следующее действие:"
	textTimes       = "Выберите время, в которое хотите получать уведомления для избранного:"
	textDisableAsk  = "Отключить все уведомления?"
	textDisabled    = "🔕 Уведомления успешно отключены.\nВы всегда можете снова включить их через меню."
	textNoFavorites = "⭐ У вас пока нет избранного.\nНайдите группу или преподавателя и нажмите «⭐ В избранное»."

	textHomeworkMenu  = "📚 Вы хотите посмотреть домашнюю работу или загрузить?"
	textHwAskGroup    = "Введите номер группы (например, БИ25-1):"
	textHwAskSubject  = "📘 По какому предмету домашка?"
	textHwAskDeadline = "📅 Введите дедлайн (например: 25.09.2025):"
	textHwBadDeadline = "Неверный формат. Введите дедлайн как ДД.ММ.ГГГГ"
	textHwAskTask     = "✏️ Введите текст задания:"
	textHwAskAttach   = "📎 Введите название файла или ссылку на задание. Если файла нет, напишите «нет»."
	textHwSaved       = "✅ Домашка добавлена!"
	textHwEmptyInput  = "Пустой ответ. Попробуйте ещё раз."
)
