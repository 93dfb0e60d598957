package core

// Job statuses, in pipeline order.
const (
	JobStatusBriefingRecebido         = "briefing_recebido"
	JobStatusOrcamentoElaboracao      = "orcamento_elaboracao"
	JobStatusOrcamentoEnviado         = "orcamento_enviado"
	JobStatusAguardandoAprovacao      = "aguardando_aprovacao"
	JobStatusAprovadoSelecaoDiretor   = "aprovado_selecao_diretor"
	JobStatusCronogramaPlanejamento   = "cronograma_planejamento"
	JobStatusPreProducao              = "pre_producao"
	JobStatusProducaoFilmagem         = "producao_filmagem"
	JobStatusPosProducao              = "pos_producao"
	JobStatusAguardandoAprovacaoFinal = "aguardando_aprovacao_final"
	JobStatusEntregue                 = "entregue"
	JobStatusFinalizado               = "finalizado"
	JobStatusCancelado                = "cancelado"
	JobStatusPausado                  = "pausado"
)

var (
	JobStatuses = []string{
		JobStatusBriefingRecebido, JobStatusOrcamentoElaboracao, JobStatusOrcamentoEnviado,
		JobStatusAguardandoAprovacao, JobStatusAprovadoSelecaoDiretor, JobStatusCronogramaPlanejamento,
		JobStatusPreProducao, JobStatusProducaoFilmagem, JobStatusPosProducao,
		JobStatusAguardandoAprovacaoFinal, JobStatusEntregue, JobStatusFinalizado,
		JobStatusCancelado, JobStatusPausado,
	}

	// InactiveJobStatuses never block people allocations.
	InactiveJobStatuses = []string{JobStatusCancelado, JobStatusPausado}

	// ClosedJobStatuses are not counted as active work.
	ClosedJobStatuses = []string{JobStatusFinalizado, JobStatusCancelado, JobStatusEntregue}

	ProjectTypes = []string{
		"filme_publicitario", "branded_content", "videoclipe", "documentario", "conteudo_digital",
		"evento_livestream", "institucional", "motion_graphics", "fotografia", "outro",
	}

	Priorities = []string{"alta", "media", "baixa"}

	ClientSegments = []string{
		"automotivo", "varejo", "fintech", "alimentos_bebidas", "moda", "tecnologia", "saude", "educacao",
		"governo", "outro",
	}

	TeamRoles = []string{
		"diretor", "produtor_executivo", "coordenador_producao", "dop", "primeiro_assistente", "editor",
		"colorista", "motion_designer", "diretor_arte", "figurinista", "produtor_casting", "produtor_locacao",
		"gaffer", "som_direto", "maquiador", "outro",
	}

	HiringStatuses = []string{"orcado", "proposta_enviada", "confirmado", "cancelado"}

	DeliverableStatuses = []string{"pendente", "em_producao", "aguardando_aprovacao", "aprovado", "entregue"}

	PosProducaoSubStatuses = []string{"edicao", "cor", "vfx", "finalizacao", "audio", "revisao"}

	HistoryEventTypes = []string{
		"status_change", "field_update", "team_change", "comment", "file_upload", "approval", "financial_update",
	}

	CostItemStatuses = []string{
		"orcado", "aguardando_nf", "nf_pedida", "nf_recebida", "nf_aprovada", "pago", "cancelado",
	}

	PaymentConditions = []string{"a_vista", "cnf_30", "cnf_40", "cnf_45", "cnf_60", "cnf_90", "snf_30"}

	PaymentMethods = []string{"pix", "ted", "dinheiro", "debito", "credito", "outro"}
)
